package audit

import (
	"sort"
	"time"
)

// Time parses the entry's timestamp. Entries written by other tools may
// use plain RFC3339.
func (e Entry) Time() (time.Time, error) {
	if t, err := time.Parse(timestampLayout, e.Timestamp); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, e.Timestamp)
}

// Query selects entries from the log. Zero values match everything.
type Query struct {
	Operations []string

	// Since and Until bound the entry time, inclusive and exclusive.
	Since time.Time
	Until time.Time

	// Limit keeps only the most recent N matches.
	Limit int

	// Reverse orders results newest first.
	Reverse bool
}

// Apply returns the entries matching q in chronological order (or reverse).
// Entries with unparseable timestamps never match a time bound.
func (q Query) Apply(entries []Entry) []Entry {
	ops := make(map[string]bool, len(q.Operations))
	for _, op := range q.Operations {
		ops[op] = true
	}

	var matched []Entry
	for _, e := range entries {
		if len(ops) > 0 && !ops[e.Operation] {
			continue
		}
		if !q.Since.IsZero() || !q.Until.IsZero() {
			t, err := e.Time()
			if err != nil {
				continue
			}
			if !q.Since.IsZero() && t.Before(q.Since) {
				continue
			}
			if !q.Until.IsZero() && !t.Before(q.Until) {
				continue
			}
		}
		matched = append(matched, e)
	}

	// Concurrent runs may append slightly out of order.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp < matched[j].Timestamp
	})

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[len(matched)-q.Limit:]
	}
	if q.Reverse {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	return matched
}
