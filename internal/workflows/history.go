package workflows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mrcrypt/mrcrypt/internal/audit"
	merrors "github.com/mrcrypt/mrcrypt/internal/errors"
)

const dateLayout = "2006-01-02"

// HistoryOptions configures the history workflow.
type HistoryOptions struct {
	// Operations filters by operation (comma-separated).
	Operations string

	// Since and Until filter by date (YYYY-MM-DD). Until is inclusive.
	Since string
	Until string

	// Limit keeps the most recent N entries. 0 means no limit.
	Limit int

	// Reverse shows the most recent entries first.
	Reverse bool
}

// HistoryResult contains the outcome of a history query.
type HistoryResult struct {
	Entries []audit.Entry

	// Total is the number of entries before filtering.
	Total int

	// LogPath is the audit log that was read.
	LogPath string
}

// History reads and filters the local audit log.
//
// Returns ErrInvalidDateFormat if Since or Until is not YYYY-MM-DD.
func History(ctx context.Context, opts HistoryOptions) (*HistoryResult, error) {
	q := audit.Query{Limit: opts.Limit, Reverse: opts.Reverse}

	for _, op := range strings.Split(opts.Operations, ",") {
		if op = strings.TrimSpace(op); op != "" {
			q.Operations = append(q.Operations, op)
		}
	}

	var err error
	if q.Since, err = parseDate(opts.Since); err != nil {
		return nil, err
	}
	if q.Until, err = parseDate(opts.Until); err != nil {
		return nil, err
	}
	if !q.Until.IsZero() {
		q.Until = q.Until.AddDate(0, 0, 1)
	}

	entries, err := audit.ReadEntries()
	if err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}

	return &HistoryResult{
		Entries: q.Apply(entries),
		Total:   len(entries),
		LogPath: audit.LogPath(),
	}, nil
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", merrors.ErrInvalidDateFormat, value)
	}
	return t, nil
}

// FormatDetails summarizes an entry's files, key and regions for display.
func FormatDetails(e audit.Entry) string {
	var parts []string
	switch len(e.Files) {
	case 0:
	case 1:
		parts = append(parts, e.Files[0])
	default:
		parts = append(parts, fmt.Sprintf("%s (+%d more)", e.Files[0], len(e.Files)-1))
	}
	if e.KeyID != "" {
		parts = append(parts, "key="+e.KeyID)
	}
	if len(e.Regions) > 0 {
		parts = append(parts, "regions="+strings.Join(e.Regions, ","))
	}
	return strings.Join(parts, " ")
}

// FormatDateTime renders an entry timestamp as local "YYYY-MM-DD HH:MM:SS".
func FormatDateTime(e audit.Entry) string {
	t, err := e.Time()
	if err != nil {
		return e.Timestamp
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
