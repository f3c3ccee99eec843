package utils

import (
	"encoding/json"
	"testing"
)

func TestParseAmount_AcceptsFormattedStrings(t *testing.T) {
	cases := []struct {
		in       interface{}
		expected string
	}{
		{"20000", "20000"},
		{"20,000", "20000"},
		{"USD 20,000", "20000"},
		{"USD -20,000", "-20000"},
		{"  1,234.50  ", "1234.5"},
		{json.Number("5000.25"), "5000.25"},
		{42, "42"},
	}
	for _, tc := range cases {
		d, err := ParseAmount(tc.in)
		if err != nil {
			t.Fatalf("ParseAmount(%v) error: %v", tc.in, err)
		}
		if d.String() != tc.expected {
			t.Fatalf("ParseAmount(%v) expected %s, got %s", tc.in, tc.expected, d.String())
		}
	}
}

func TestParseAmount_RejectsGarbage(t *testing.T) {
	for _, in := range []interface{}{"", "abc", true} {
		if _, err := ParseAmount(in); err == nil {
			t.Fatalf("ParseAmount(%v) expected error", in)
		}
	}
}
