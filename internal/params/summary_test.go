package params

import (
	"strings"
	"testing"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		in   any
		opts SummaryOptions
		want string
	}{
		{
			name: "sorted fields",
			in:   map[string]any{"b": 2, "a": "x"},
			opts: DefaultSummaryOptions(),
			want: `a: "x", b: 2`,
		},
		{
			name: "single task unwrapped",
			in:   []any{map[string]any{"keyword": "coffee", "location_code": 2840}},
			opts: DefaultSummaryOptions(),
			want: `keyword: "coffee", location_code: 2840`,
		},
		{
			name: "single task kept when unwrap disabled",
			in:   []any{map[string]any{"keyword": "coffee"}},
			opts: SummaryOptions{MaxStringLen: 100},
			want: `[{keyword: "coffee"}]`,
		},
		{
			name: "multiple tasks rendered element by element",
			in:   []any{map[string]any{"k": "a"}, map[string]any{"k": "b"}},
			opts: DefaultSummaryOptions(),
			want: `[{k: "a"}, {k: "b"}]`,
		},
		{
			name: "truncated strings",
			in:   map[string]any{"q": "abcdefghij"},
			opts: SummaryOptions{MaxStringLen: 4},
			want: `q: "abcd..."`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Summarize(tt.in, tt.opts)
			if err != nil {
				t.Fatalf("Summarize: %v", err)
			}
			if got != tt.want {
				t.Errorf("Summarize() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSummarizeDefaultLimit(t *testing.T) {
	long := strings.Repeat("x", 250)
	got, err := Summarize(map[string]any{"q": long}, SummaryOptions{})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if want := `q: "` + strings.Repeat("x", 100) + `..."`; got != want {
		t.Errorf("got %d chars, want %d", len(got), len(want))
	}
}

func TestUnwrapSingleTask(t *testing.T) {
	scalar := []any{"only"}
	if got := UnwrapSingleTask(scalar); len(got.([]any)) != 1 {
		t.Errorf("list of scalar should not be unwrapped, got %v", got)
	}

	task := map[string]any{"k": 1}
	if got, ok := UnwrapSingleTask([]any{task}).(map[string]any); !ok || got["k"] != 1 {
		t.Errorf("single task should be unwrapped, got %v", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := Truncate("héllo wörld", 5); got != "héllo..." {
		t.Errorf("Truncate() = %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate() = %q", got)
	}
}
