package decode_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derickschaefer/gridfetch/internal/decode"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?><GL_MarketDocument><type>A65</type></GL_MarketDocument>`

// zipOf builds an in-memory archive with the given name/content entries.
func zipOf(t *testing.T, entries ...[2]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e[0])
		require.NoError(t, err)
		_, err = w.Write([]byte(e[1]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDecode_PlainXML(t *testing.T) {
	got, err := decode.Decode([]byte(sampleXML))
	require.NoError(t, err)
	assert.Equal(t, sampleXML, got)
}

func TestDecode_StripsBOM(t *testing.T) {
	raw := append([]byte{0xEF, 0xBB, 0xBF}, sampleXML...)
	got, err := decode.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, sampleXML, got)
}

func TestDecode_InvalidUTF8(t *testing.T) {
	_, err := decode.Decode([]byte{'<', 'a', '>', 0xff, 0xfe})
	var de *decode.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Error(), "UTF-8")
}

func TestDecode_ZipUsesFirstXMLEntry(t *testing.T) {
	raw := zipOf(t,
		[2]string{"readme.txt", "not xml"},
		[2]string{"2023.XML", sampleXML},
		[2]string{"2024.xml", "<second/>"},
	)
	assert.True(t, decode.IsZip(raw))

	got, err := decode.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, sampleXML, got)
}

func TestDecode_ZipWithoutXML(t *testing.T) {
	raw := zipOf(t, [2]string{"data.csv", "a,b"}, [2]string{"notes.txt", "x"})

	_, err := decode.Decode(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, decode.ErrNoXMLInArchive))
	assert.Contains(t, err.Error(), "data.csv")
}

func TestDecode_CorruptZip(t *testing.T) {
	_, err := decode.Decode([]byte("PK\x03\x04 truncated"))
	var de *decode.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Reason, "ZIP")
}

func TestIsZip(t *testing.T) {
	assert.False(t, decode.IsZip(nil))
	assert.False(t, decode.IsZip([]byte("P")))
	assert.False(t, decode.IsZip([]byte("<xml/>")))
	assert.True(t, decode.IsZip([]byte("PK\x03\x04")))
}
