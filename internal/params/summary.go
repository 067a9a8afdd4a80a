package params

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultMaxStringLen is the default truncation limit for summary strings.
const DefaultMaxStringLen = 100

// SummaryOptions controls Summarize output.
type SummaryOptions struct {
	// MaxStringLen truncates string values to this many runes (default 100)
	MaxStringLen int

	// UnwrapSingleTask applies UnwrapSingleTask before rendering
	UnwrapSingleTask bool
}

// DefaultSummaryOptions returns the options used for log and table summaries.
func DefaultSummaryOptions() SummaryOptions {
	return SummaryOptions{
		MaxStringLen:     DefaultMaxStringLen,
		UnwrapSingleTask: true,
	}
}

// UnwrapSingleTask returns the sole element of a one-element list when that
// element is a map. Task-based APIs take a list holding a single task object;
// unwrapping keeps summaries readable. Lists of any other shape are returned
// unchanged. For display only: cache keys hash the unwrapped-free form.
func UnwrapSingleTask(v any) any {
	list, ok := v.([]any)
	if !ok || len(list) != 1 {
		return v
	}
	if m, ok := list[0].(map[string]any); ok {
		return m
	}
	return v
}

// Summarize renders the normalized form of v as a single readable line,
// e.g. `keyword: "coffee", location_code: 2840, tags: ["a", "b"]`.
func Summarize(v any, opts SummaryOptions) (string, error) {
	if opts.MaxStringLen <= 0 {
		opts.MaxStringLen = DefaultMaxStringLen
	}
	n, err := Normalize(v)
	if err != nil {
		return "", err
	}
	if opts.UnwrapSingleTask {
		n = UnwrapSingleTask(n)
	}

	var b strings.Builder
	if m, ok := n.(map[string]any); ok {
		writeFields(&b, m, opts)
	} else {
		writeValue(&b, n, opts)
	}
	return b.String(), nil
}

func writeFields(b *strings.Builder, m map[string]any, opts SummaryOptions) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		writeValue(b, m[k], opts)
	}
}

func writeValue(b *strings.Builder, v any, opts SummaryOptions) {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case string:
		b.WriteString(strconv.Quote(Truncate(t, opts.MaxStringLen)))
	case bool:
		b.WriteString(strconv.FormatBool(t))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case uint64:
		b.WriteString(strconv.FormatUint(t, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'f', -1, 64))
	case json.Number:
		b.WriteString(t.String())
	case map[string]any:
		b.WriteString("{")
		writeFields(b, t, opts)
		b.WriteString("}")
	case []any:
		b.WriteString("[")
		for i, e := range t {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, e, opts)
		}
		b.WriteString("]")
	default:
		fmt.Fprintf(b, "%v", t)
	}
}

// Truncate shortens s to max runes, marking the cut with "...".
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
