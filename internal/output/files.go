// Package output saves the raw artifacts of a trace run to disk.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"qtrace/internal/config"
)

// Writer saves artifacts to the files named in the output config. An artifact
// whose path is empty is skipped.
type Writer struct {
	cfg    config.OutputConfig
	logger *slog.Logger
}

// NewWriter initializes a Writer for the configured paths.
func NewWriter(cfg config.OutputConfig, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{cfg: cfg, logger: logger}
}

// SaveQuery writes the GraphQL query text and its variables.
func (w *Writer) SaveQuery(query string, variables json.RawMessage) error {
	if w.cfg.Query != "" {
		if err := w.write("query", w.cfg.Query, []byte(query+"\n")); err != nil {
			return err
		}
	}
	if w.cfg.Variables != "" {
		if err := w.writeJSON("variables", w.cfg.Variables, variables); err != nil {
			return err
		}
	}
	return nil
}

// SaveData writes the GraphQL result data.
func (w *Writer) SaveData(data []byte) error {
	if w.cfg.Data == "" {
		return nil
	}
	return w.writeJSON("data", w.cfg.Data, data)
}

// SaveTrace writes the trace exactly as graph-node returned it, pretty-printed.
func (w *Writer) SaveTrace(trace []byte) error {
	if w.cfg.Trace == "" {
		return nil
	}
	return w.writeJSON("trace", w.cfg.Trace, trace)
}

func (w *Writer) writeJSON(what, path string, raw []byte) error {
	if len(raw) == 0 {
		raw = []byte("null")
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("failed to format %s: %w", what, err)
	}
	buf.WriteByte('\n')
	return w.write(what, path, buf.Bytes())
}

func (w *Writer) write(what, path string, contents []byte) error {
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		return fmt.Errorf("failed to save %s: %w", what, err)
	}
	w.logger.Debug("Saved artifact", "artifact", what, "path", path)
	return nil
}
