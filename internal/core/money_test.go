package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{" 2.50 ", "2.5", true},
		{"100 000", "100000", true},
		{"-1", "", false},
		{"0", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestParseRate(t *testing.T) {
	if r, err := ParseRate(""); err != nil || !r.IsZero() {
		t.Fatalf("empty rate should be zero, got %s err=%v", r, err)
	}
	if r, err := ParseRate("2,5"); err != nil || !r.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("expected 2.5, got %s err=%v", r, err)
	}
	if _, err := ParseRate("-1"); err == nil {
		t.Fatalf("negative rate should fail")
	}
}
