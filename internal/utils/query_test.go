package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		{"x", 5, 5},
		{" 42", 7, 7},
		{"999999999999999999999999", -1, -1},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestClampInt(t *testing.T) {
	cases := []struct{ v, lo, hi, want int }{
		{5, 1, 10, 5},
		{0, 1, 10, 1},
		{11, 1, 10, 10},
		{-3, -5, -1, -3},
		{1000, 1, 0, 1000}, // hi < lo: lower bound only
		{-1, 1, 0, 1},
	}
	for _, tc := range cases {
		if got := ClampInt(tc.v, tc.lo, tc.hi); got != tc.want {
			t.Fatalf("ClampInt(%d, %d, %d) = %d; want %d", tc.v, tc.lo, tc.hi, got, tc.want)
		}
	}
}

func TestQueryInt(t *testing.T) {
	if got := QueryInt("", 50, 1, 500); got != 50 {
		t.Fatalf("default: got %d", got)
	}
	if got := QueryInt("9999", 50, 1, 500); got != 500 {
		t.Fatalf("upper clamp: got %d", got)
	}
	if got := QueryInt("-4", 50, 1, 500); got != 1 {
		t.Fatalf("lower clamp: got %d", got)
	}
	if got := QueryInt("abc", 1, 1, 0); got != 1 {
		t.Fatalf("invalid: got %d", got)
	}
}
