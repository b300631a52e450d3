package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestMoneyFromDecimal(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"12.5", 1250},
		{"12.345", 1235},
		{"12.344", 1234},
		{"0.1", 10},
		{"100", 10000},
	}
	for _, tc := range cases {
		got := MoneyFromDecimal(decimal.RequireFromString(tc.in))
		if got.Cents != tc.want {
			t.Errorf("MoneyFromDecimal(%s) = %d, want %d", tc.in, got.Cents, tc.want)
		}
	}
}

func TestMoneyFixed(t *testing.T) {
	cases := map[int64]string{
		1250: "12.50",
		1:    "0.01",
		100:  "1.00",
		0:    "0.00",
	}
	for cents, want := range cases {
		if got := (Money{Cents: cents}).Fixed(); got != want {
			t.Errorf("Money{%d}.Fixed() = %q, want %q", cents, got, want)
		}
	}
}
