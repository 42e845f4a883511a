// Package store provides a thin bbolt wrapper for gridfetch's local data store.
//
// The store is an intentional data accumulator: merged documents are written
// by fetch, poll and batch and extended in place by later polls. Nothing
// expires on its own.
//
// Buckets:
//
//	documents — merged document per request name
//	raw       — raw API payloads keyed by request name and chunk label
//	requests  — saved request definitions
//	runs      — run reports keyed by request name and start time
//	_meta     — internal: schema version, created_at
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/derickschaefer/gridfetch/internal/model"
)

// Current schema version. Bump when bucket layout or key format changes.
const schemaVersion = 1

// Bucket name constants.
var (
	bucketDocuments = []byte("documents")
	bucketRaw       = []byte("raw")
	bucketRequests  = []byte("requests")
	bucketRuns      = []byte("runs")
	bucketInternal  = []byte("_meta")
)

// AllBuckets lists every user-facing bucket for stats and clear operations.
var AllBuckets = []string{"documents", "raw", "requests", "runs"}

// keySep separates the request name from the rest of composite keys.
const keySep = "/"

// Store wraps a bbolt database.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the bbolt database at path.
// Parent directories are created automatically.
// Runs schema migrations on every open.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the open database.
func (s *Store) Path() string {
	return s.db.Path()
}

// ─── Migrations ───────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketDocuments, bucketRaw, bucketRequests, bucketRuns, bucketInternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketInternal)
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion))); err != nil {
				return err
			}
			if err := meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		}
		return nil
	})
}

// ─── Documents ────────────────────────────────────────────────────────────────

// StoredDocument is the on-disk envelope of a merged document.
type StoredDocument struct {
	Name      string               `json:"name"`
	UpdatedAt time.Time            `json:"updated_at"`
	Document  model.MergedDocument `json:"document"`
}

// DocumentInfo summarizes a stored document for listings.
type DocumentInfo struct {
	Name            string    `json:"name"`
	DocumentType    string    `json:"document_type"`
	Start           string    `json:"start"`
	End             string    `json:"end"`
	Timeseries      int       `json:"timeseries"`
	TotalDataPoints int       `json:"total_data_points"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PutDocument stores doc under name, replacing any previous document.
func (s *Store) PutDocument(name string, doc *model.MergedDocument) error {
	if name == "" {
		return fmt.Errorf("document name is required")
	}
	b, err := json.Marshal(StoredDocument{Name: name, UpdatedAt: time.Now().UTC(), Document: *doc})
	if err != nil {
		return fmt.Errorf("encoding document %s: %w", name, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).Put([]byte(name), b)
	})
}

// GetDocument retrieves the document stored under name.
// Returns (doc, true, nil) if found, (nil, false, nil) if not found.
func (s *Store) GetDocument(name string) (*model.MergedDocument, bool, error) {
	var env StoredDocument
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketDocuments).Get([]byte(name))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &env)
	})
	if err != nil {
		return nil, false, fmt.Errorf("decoding document %s: %w", name, err)
	}
	if !found {
		return nil, false, nil
	}
	return &env.Document, true, nil
}

// HasDocument reports whether a document is stored under name.
func (s *Store) HasDocument(name string) (bool, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketDocuments).Get([]byte(name)) != nil
		return nil
	})
	return found, err
}

// ListDocuments returns a summary of every stored document, sorted by name.
func (s *Store) ListDocuments() ([]DocumentInfo, error) {
	var infos []DocumentInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			var env StoredDocument
			if err := json.Unmarshal(v, &env); err != nil {
				return fmt.Errorf("decoding document %s: %w", k, err)
			}
			d := env.Document
			infos = append(infos, DocumentInfo{
				Name:            env.Name,
				DocumentType:    d.DocumentInfo.DocumentType,
				Start:           d.TimeInterval.Start,
				End:             d.TimeInterval.End,
				Timeseries:      d.TimeseriesCount,
				TotalDataPoints: d.TotalDataPoints,
				UpdatedAt:       env.UpdatedAt,
			})
			return nil
		})
	})
	return infos, err
}

// DeleteDocument removes the document stored under name together with its
// raw payloads.
func (s *Store) DeleteDocument(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketDocuments).Delete([]byte(name)); err != nil {
			return err
		}
		return deletePrefix(tx.Bucket(bucketRaw), []byte(name+keySep))
	})
}

// ─── Raw payloads ─────────────────────────────────────────────────────────────

// RawInfo describes one archived payload.
type RawInfo struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Bytes int    `json:"bytes"`
}

// PutRaw archives a raw payload for name and chunk label.
func (s *Store) PutRaw(name, label string, raw []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRaw).Put([]byte(name+keySep+label), raw)
	})
}

// GetRaw returns a copy of the payload archived for name and label.
func (s *Store) GetRaw(name, label string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketRaw).Get([]byte(name + keySep + label)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil, err
}

// ListRaw lists archived payloads of name, or of every request when name is "".
func (s *Store) ListRaw(name string) ([]RawInfo, error) {
	var prefix []byte
	if name != "" {
		prefix = []byte(name + keySep)
	}
	var infos []RawInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRaw).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			i := bytes.LastIndex(k, []byte(keySep))
			if i < 0 {
				continue
			}
			infos = append(infos, RawInfo{Name: string(k[:i]), Label: string(k[i+1:]), Bytes: len(v)})
		}
		return nil
	})
	return infos, err
}

// ─── Requests ─────────────────────────────────────────────────────────────────

// PutRequest saves a request definition under its name.
func (s *Store) PutRequest(def model.RequestDef) error {
	if def.Name == "" {
		return fmt.Errorf("request name is required")
	}
	b, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encoding request %s: %w", def.Name, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRequests).Put([]byte(def.Name), b)
	})
}

// GetRequest retrieves a request definition by name.
func (s *Store) GetRequest(name string) (model.RequestDef, bool, error) {
	var def model.RequestDef
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRequests).Get([]byte(name))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &def)
	})
	if err != nil {
		return def, false, err
	}
	return def, def.Name != "", nil
}

// ListRequests returns all saved requests in name order.
func (s *Store) ListRequests() ([]model.RequestDef, error) {
	var defs []model.RequestDef
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRequests).ForEach(func(k, v []byte) error {
			var def model.RequestDef
			if err := json.Unmarshal(v, &def); err != nil {
				return err
			}
			defs = append(defs, def)
			return nil
		})
	})
	return defs, err
}

// DeleteRequest removes a saved request by name.
func (s *Store) DeleteRequest(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRequests).Delete([]byte(name))
	})
}

// ─── Runs ─────────────────────────────────────────────────────────────────────

// PutRun records a run report. Keys sort by request name then start time.
func (s *Store) PutRun(r model.RunReport) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding run %s: %w", r.RunID, err)
	}
	key := r.Name + keySep + r.StartedAt.UTC().Format(time.RFC3339Nano) + keySep + r.RunID
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).Put([]byte(key), b)
	})
}

// ListRuns returns the reports of name (all requests when name is ""),
// most recent first.
func (s *Store) ListRuns(name string) ([]model.RunReport, error) {
	var prefix []byte
	if name != "" {
		prefix = []byte(name + keySep)
	}
	var runs []model.RunReport
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var r model.RunReport
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			runs = append(runs, r)
		}
		return nil
	})
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs, err
}

// ─── Stats & Maintenance ──────────────────────────────────────────────────────

// BucketStats holds row count and byte size for a single bucket.
type BucketStats struct {
	Name  string
	Count int
	Bytes int64
}

// Stats returns row counts and approximate sizes for all buckets,
// in AllBuckets order.
func (s *Store) Stats() ([]BucketStats, error) {
	var stats []BucketStats
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range AllBuckets {
			b := tx.Bucket([]byte(name))
			if b == nil {
				continue
			}
			var count int
			var size int64
			b.ForEach(func(k, v []byte) error {
				count++
				size += int64(len(k) + len(v))
				return nil
			})
			stats = append(stats, BucketStats{Name: name, Count: count, Bytes: size})
		}
		return nil
	})
	return stats, err
}

// ClearBucket deletes all entries in the named bucket.
func (s *Store) ClearBucket(name string) error {
	bname := []byte(name)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bname); err != nil {
			return fmt.Errorf("clearing bucket %s: %w", name, err)
		}
		_, err := tx.CreateBucket(bname)
		return err
	})
}

// ClearAll deletes all entries from every user-facing bucket.
func (s *Store) ClearAll() error {
	for _, name := range AllBuckets {
		if err := s.ClearBucket(name); err != nil {
			return err
		}
	}
	return nil
}

func deletePrefix(b *bolt.Bucket, prefix []byte) error {
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
