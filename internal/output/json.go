package output

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/jmylchreest/campwatch/internal/model"
)

// JSONWriter writes each summary as one JSON document.
type JSONWriter struct {
	w      *bufio.Writer
	pretty bool
	indent string
}

// NewJSONWriter creates a JSON writer.
func NewJSONWriter(w io.Writer, pretty bool, indent string) *JSONWriter {
	return &JSONWriter{
		w:      bufio.NewWriter(w),
		pretty: pretty,
		indent: indent,
	}
}

// Write encodes the summary followed by a newline.
func (w *JSONWriter) Write(summary *model.RunSummary) error {
	var output []byte
	var err error
	if w.pretty {
		output, err = json.MarshalIndent(summary, "", w.indent)
	} else {
		output, err = json.Marshal(summary)
	}
	if err != nil {
		return err
	}

	if _, err := w.w.Write(output); err != nil {
		return err
	}
	if _, err := w.w.WriteString("\n"); err != nil {
		return err
	}
	return w.w.Flush()
}

// Close flushes the writer.
func (w *JSONWriter) Close() error {
	return w.w.Flush()
}

// JSONLWriter writes one competitor record per line, which appends cleanly
// to a history file across runs.
type JSONLWriter struct {
	w *bufio.Writer
}

// NewJSONLWriter creates a JSONL writer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{
		w: bufio.NewWriter(w),
	}
}

// Write writes every record of the summary as a JSON line.
func (w *JSONLWriter) Write(summary *model.RunSummary) error {
	for _, rec := range summary.Results {
		output, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if _, err := w.w.Write(output); err != nil {
			return err
		}
		if _, err := w.w.WriteString("\n"); err != nil {
			return err
		}
	}
	return w.w.Flush()
}

// Close flushes the writer.
func (w *JSONLWriter) Close() error {
	return w.w.Flush()
}
