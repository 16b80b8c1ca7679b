// Package report renders critical paths for people and tools.
//
// Two formats are supported:
//   - text: one tab-separated row per entry with the columns kind, name,
//     category, identifier, execution_kind, total_duration, user_duration
//     and potential_improvement_duration. Columns that do not apply to an
//     entry's kind are empty.
//   - json: one JSON object per line with the same keys. Keys that do not
//     apply are omitted.
//
// Durations are integer microseconds in both formats. The name column
// starts with the label, so splitting it on the first space yields the
// label.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/critpath/internal/ir"
)

// Format is an output format name.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Formats lists the supported formats.
var Formats = []Format{FormatText, FormatJSON}

// UnsupportedFormatError is returned for an unknown format name. Nothing is
// written when it is returned.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format %q: must be one of %v", e.Format, Formats)
}

// ParseFormat returns the format named s.
func ParseFormat(s string) (Format, error) {
	if slices.Contains(Formats, Format(s)) {
		return Format(s), nil
	}
	return "", &UnsupportedFormatError{Format: s}
}

type options struct {
	reversed bool
}

// Option configures Render.
type Option func(*options)

// Reversed renders the sentinel first and the root load last.
func Reversed() Option {
	return func(o *options) {
		o.reversed = true
	}
}

// Row is one rendered entry. Nil fields do not apply to the entry's kind.
type Row struct {
	Kind                         string  `json:"kind"`
	Name                         *string `json:"name,omitempty"`
	Category                     *string `json:"category,omitempty"`
	Identifier                   *string `json:"identifier,omitempty"`
	ExecutionKind                *string `json:"execution_kind,omitempty"`
	TotalDuration                int64   `json:"total_duration"`
	UserDuration                 int64   `json:"user_duration"`
	PotentialImprovementDuration int64   `json:"potential_improvement_duration"`
}

// NewRow converts an entry.
func NewRow(e ir.Entry) Row {
	r := Row{
		Kind:                         e.Kind().String(),
		TotalDuration:                ir.Micros(e.TotalDuration),
		UserDuration:                 ir.Micros(e.UserDuration),
		PotentialImprovementDuration: ir.Micros(e.PotentialImprovement),
	}
	id := e.Identifier
	switch e.Kind() {
	case ir.KindComputeCriticalPath:
	case ir.KindAction:
		r.Name = ptr(id.Label)
		r.Category = ptr(id.Category)
		r.Identifier = ptr(id.Qualifier)
		r.ExecutionKind = ptr(e.ExecutionKind().String())
	case ir.KindMaterialization:
		r.Name = ptr(id.Label)
		r.Identifier = ptr(id.Qualifier)
	default:
		r.Name = ptr(id.Label)
	}
	return r
}

// Fields returns the row's text columns.
func (r Row) Fields() []string {
	return []string{
		r.Kind,
		deref(r.Name),
		deref(r.Category),
		deref(r.Identifier),
		deref(r.ExecutionKind),
		strconv.FormatInt(r.TotalDuration, 10),
		strconv.FormatInt(r.UserDuration, 10),
		strconv.FormatInt(r.PotentialImprovementDuration, 10),
	}
}

// Render writes entries to w in the given format.
func Render(w io.Writer, entries []ir.Entry, format Format, opts ...Option) error {
	if _, err := ParseFormat(string(format)); err != nil {
		return err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	rows := make([]Row, len(entries))
	for i, e := range entries {
		rows[i] = NewRow(e)
	}
	if o.reversed {
		slices.Reverse(rows)
	}

	bw := bufio.NewWriter(w)
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(bw)
		enc.SetEscapeHTML(false)
		for _, r := range rows {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("render json: %w", err)
			}
		}
	default:
		for _, r := range rows {
			if _, err := bw.WriteString(strings.Join(r.Fields(), "\t") + "\n"); err != nil {
				return fmt.Errorf("render text: %w", err)
			}
		}
	}
	return bw.Flush()
}

func ptr(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
