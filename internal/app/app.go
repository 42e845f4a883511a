// Package app wires together configuration, the API client, the local store
// and the fetch orchestrator into a single Deps struct that commands receive
// at runtime.
package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/derickschaefer/gridfetch/internal/chunk"
	"github.com/derickschaefer/gridfetch/internal/config"
	"github.com/derickschaefer/gridfetch/internal/entsoe"
	"github.com/derickschaefer/gridfetch/internal/fetch"
	"github.com/derickschaefer/gridfetch/internal/logger"
	"github.com/derickschaefer/gridfetch/internal/metrics"
	"github.com/derickschaefer/gridfetch/internal/store"
)

// Deps holds all runtime dependencies injected into command Run functions.
// Store is nil until RequireStore is called.
type Deps struct {
	Config  *config.Config
	Client  *entsoe.Client
	Store   *store.Store
	Log     logger.Logger
	Metrics metrics.Recorder
}

// New builds a Deps from resolved config.
func New(cfg *config.Config) *Deps {
	log := logger.New("gridfetch")
	client := entsoe.NewClient(entsoe.Options{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout,
		RatePerSec: cfg.Rate,
		Retries:    cfg.Retries,
		Log:        logger.New("entsoe"),
	})
	return &Deps{
		Config:  cfg,
		Client:  client,
		Log:     log,
		Metrics: metrics.Nop{},
	}
}

// RequireStore opens the bbolt database at Config.DBPath if it is not
// already open.
func (d *Deps) RequireStore() error {
	if d.Store != nil {
		return nil
	}
	s, err := store.Open(d.Config.DBPath)
	if err != nil {
		return err
	}
	d.Store = s
	return nil
}

// EnableMetrics replaces the no-op recorder with a prometheus sink
// registered on reg.
func (d *Deps) EnableMetrics(reg prometheus.Registerer) error {
	sink, err := metrics.NewPromSink(reg)
	if err != nil {
		return err
	}
	d.Metrics = sink
	return nil
}

// Orchestrator returns a fetch orchestrator configured from Config. Raw
// payloads are archived in the store when it is open.
func (d *Deps) Orchestrator() *fetch.Orchestrator {
	o := &fetch.Orchestrator{
		Fetcher: d.Client,
		Planner: chunk.NewPlanner(d.Config.YearThreshold),
		Delay:   d.Config.RequestDelay,
		Log:     logger.New("fetch"),
		Metrics: d.Metrics,
	}
	if d.Store != nil {
		o.Archive = d.Store.PutRaw
	}
	return o
}

// Close releases the store if it was opened.
func (d *Deps) Close() {
	if d.Store != nil {
		_ = d.Store.Close()
		d.Store = nil
	}
}
