// Package decode unwraps raw transparency-platform payloads into XML text.
// Large responses arrive as ZIP archives; everything else is plain UTF-8 XML.
package decode

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// zipMagic is the local file header signature every archive starts with.
var zipMagic = []byte("PK")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrNoXMLInArchive is returned when a ZIP payload has no .xml entry.
var ErrNoXMLInArchive = errors.New("no XML file found in ZIP archive")

// DecodeError reports a payload that could not be turned into XML text.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return "decode: " + e.Reason + ": " + e.Err.Error()
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsZip reports whether raw starts with the ZIP magic number.
func IsZip(raw []byte) bool {
	return len(raw) >= 2 && bytes.Equal(raw[:2], zipMagic)
}

// Decode returns the XML text carried by raw.
// For archives the first entry with an .xml extension is used; archives with
// several XML entries silently resolve to the first one.
func Decode(raw []byte) (string, error) {
	if IsZip(raw) {
		return fromZip(raw)
	}
	return fromText(raw)
}

func fromZip(raw []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", &DecodeError{Reason: "opening ZIP archive", Err: err}
	}

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		if !strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", &DecodeError{Reason: fmt.Sprintf("opening %q", f.Name), Err: err}
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", &DecodeError{Reason: fmt.Sprintf("reading %q", f.Name), Err: err}
		}
		return fromText(data)
	}
	return "", &DecodeError{
		Reason: fmt.Sprintf("archive entries [%s]", strings.Join(names, ", ")),
		Err:    ErrNoXMLInArchive,
	}
}

func fromText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", &DecodeError{Reason: "payload is not valid UTF-8"}
	}
	return string(data), nil
}
