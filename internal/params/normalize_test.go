package params

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNormalizeOrderIndependent(t *testing.T) {
	a := map[string]any{
		"keyword":       "coffee",
		"location_code": 2840,
		"filters":       map[string]any{"b": 2, "a": 1},
	}
	b := map[string]any{
		"filters":       map[string]any{"a": 1, "b": 2},
		"location_code": 2840,
		"keyword":       "coffee",
	}

	ja, err := Canonical(a)
	if err != nil {
		t.Fatalf("Canonical(a): %v", err)
	}
	jb, err := Canonical(b)
	if err != nil {
		t.Fatalf("Canonical(b): %v", err)
	}
	if string(ja) != string(jb) {
		t.Errorf("canonical forms differ:\n%s\n%s", ja, jb)
	}
}

func TestNormalizeDropsNulls(t *testing.T) {
	in := map[string]any{
		"keep":   "x",
		"drop":   nil,
		"nested": map[string]any{"gone": nil, "here": 1},
		"list":   []any{nil, "a", nil, "b"},
	}

	out, err := Normalize(in)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	data, _ := json.Marshal(out)
	if strings.Contains(string(data), "null") {
		t.Errorf("normalized form contains null: %s", data)
	}

	m := out.(map[string]any)
	if _, ok := m["drop"]; ok {
		t.Error("expected nil entry to be removed")
	}
	list := m["list"].([]any)
	if len(list) != 2 || list[0] != "a" || list[1] != "b" {
		t.Errorf("list = %v, want [a b]", list)
	}
}

func TestNormalizeNumericKeys(t *testing.T) {
	tests := []struct {
		name     string
		in       map[string]any
		wantList bool
	}{
		{"dense keys become list", map[string]any{"1": "b", "0": "a"}, true},
		{"gap keeps map", map[string]any{"0": "a", "2": "c"}, false},
		{"leading zero is not numeric", map[string]any{"0": "a", "01": "b"}, false},
		{"mixed keys keep map", map[string]any{"0": "a", "name": "b"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Normalize(tt.in)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			_, isList := out.([]any)
			if isList != tt.wantList {
				t.Errorf("isList = %v, want %v (out=%v)", isList, tt.wantList, out)
			}
		})
	}
}

func TestNormalizeIntegerKeyedMap(t *testing.T) {
	out, err := Normalize(map[int]string{1: "b", 0: "a"})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	list, ok := out.([]any)
	if !ok || len(list) != 2 || list[0] != "a" {
		t.Errorf("out = %v, want [a b]", out)
	}
}

func TestNormalizeRejectsNonScalars(t *testing.T) {
	type handle struct{ fd int }

	tests := []struct {
		name string
		in   any
	}{
		{"func", map[string]any{"cb": func() {}}},
		{"channel", map[string]any{"ch": make(chan int)}},
		{"struct", map[string]any{"h": handle{fd: 3}}},
		{"pointer", map[string]any{"h": &handle{fd: 3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.in)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func nest(levels int) map[string]any {
	m := map[string]any{"leaf": 1}
	for i := 1; i < levels; i++ {
		m = map[string]any{"n": m}
	}
	return m
}

func TestNormalizeDepthCeiling(t *testing.T) {
	if _, err := Normalize(nest(MaxDepth)); err != nil {
		t.Errorf("depth %d should be accepted: %v", MaxDepth, err)
	}

	_, err := Normalize(nest(MaxDepth + 1))
	if !errors.Is(err, ErrTooDeep) {
		t.Errorf("err = %v, want ErrTooDeep", err)
	}
	if !errors.Is(err, ErrInvalidArgument) {
		t.Error("ErrTooDeep should wrap ErrInvalidArgument")
	}
}

func TestNormalizeMapEmpty(t *testing.T) {
	m, err := NormalizeMap(nil)
	if err != nil {
		t.Fatalf("NormalizeMap: %v", err)
	}
	if m == nil || len(m) != 0 {
		t.Errorf("NormalizeMap(nil) = %v, want empty map", m)
	}
}
