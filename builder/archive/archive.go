// Package archive writes zip outputs. It wraps a zip.Writer with the small
// set of operations the exporters share: streaming a store blob, copying an
// override entry tree, embedding a rendered manifest.
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"path"

	"github.com/rs/zerolog/log"

	"github.com/packsmith/packsmith/overrides"
)

type Writer struct {
	zw *zip.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{zw: zip.NewWriter(w)}
}

func (a *Writer) AddReader(r io.Reader, name string) error {
	w, err := a.zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, r)
	return err
}

// AddEntries copies merged override entries into the archive under dir.
func (a *Writer) AddEntries(dir string, entries []overrides.Entry) error {
	for _, e := range entries {
		f, err := e.Open()
		if err != nil {
			return err
		}
		err = a.AddReader(f, path.Join(dir, e.Path))
		if cerr := f.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("path", e.Path).Msg("closing override entry failed")
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// AddJSON renders v with two-space indentation and embeds it under name.
func (a *Writer) AddJSON(v interface{}, name string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return a.AddReader(&buf, name)
}

func (a *Writer) Close() error {
	return a.zw.Close()
}
