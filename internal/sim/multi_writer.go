package sim

import (
	"errors"
	"io"

	"netsir-sim/internal/telemetry"
)

// MultiWriter fan-outs round and node rows to multiple writers.
type MultiWriter struct {
	writers []RoundWriter
}

// NewMultiWriter creates a new MultiWriter. Nil writers are skipped.
func NewMultiWriter(ws ...RoundWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// WriteHeader forwards to every writer that writes a header.
func (mw *MultiWriter) WriteHeader() error {
	var errs []error
	for _, w := range mw.writers {
		if hw, ok := w.(headerWriter); ok {
			if err := hw.WriteHeader(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// WriteRound sends a round row to all writers. A failing writer does not
// keep the row from the others.
func (mw *MultiWriter) WriteRound(row telemetry.RoundRow) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.WriteRound(row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteNodes sends node rows to the writers that keep them.
func (mw *MultiWriter) WriteNodes(rows []telemetry.NodeRow) error {
	var errs []error
	for _, w := range mw.writers {
		if nw, ok := w.(NodeWriter); ok {
			if err := nw.WriteNodes(rows); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer that is an io.Closer.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
