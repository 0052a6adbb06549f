package sheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  CRTS DE   TREICHVILLE ", "CRTS DE TREICHVILLE"},
		{"\ufeffdate", "date"},
		{"a\u200bb", "ab"},
		{"CDTS\u00a0DE\u202fCOCODY", "CDTS DE COCODY"},
		{"#N/A", ""},
		{"n/a", ""},
		{" #ref! ", ""},
		{"#VALEUR!", ""},
		{"#VALUE!", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CleanText(tc.in), "input %q", tc.in)
	}
}

func TestNormalizeDateFormats(t *testing.T) {
	for _, in := range []string{"2026-03-05", "5/3/26", "05/03/2026", " 5/03/2026 ", "2026-03-05T08:00:00Z", "05/03/2026 08:15"} {
		assert.Equal(t, "05/03/2026", NormalizeDate(in), "input %q", in)
	}
}

func TestNormalizeDateLeavesUnparseableInput(t *testing.T) {
	assert.Equal(t, "Date", NormalizeDate(" Date "))
	assert.Equal(t, "", NormalizeDate("#N/A"))
	assert.Equal(t, "5/3", NormalizeDate("5/3"))

	_, ok := ParseDate(NormalizeDate("Date"))
	assert.False(t, ok)
}

func TestParseDate(t *testing.T) {
	d, ok := ParseDate("05/03/2026")
	if assert.True(t, ok) {
		assert.Equal(t, 2026, d.Year())
		assert.Equal(t, 3, int(d.Month()))
		assert.Equal(t, 5, d.Day())
	}
	for _, bad := range []string{"31/02/2026", "5/3/2026", "2026-03-05", "", "aa/bb/cccc"} {
		_, ok := ParseDate(bad)
		assert.False(t, ok, bad)
	}
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"12", 12},
		{" 1 234 ", 1234},
		{"1\u00a0234", 1234},
		{"2,5", 3},
		{"2,4", 2},
		{"7.6", 8},
		{"-3", 0},
		{"", 0},
		{"abc", 0},
		{"#N/A", 0},
		{"1.234.5", 1},
		{"1.234,5", 1},
		{"1,234.5", 1},
		{"1.234.567", 1},
		{"10-", 10},
		{"12.", 12},
		{",5", 1},
		{"-", 0},
		{".", 0},
		{"--4", 0},
		{"15 poches", 15},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseNumber(tc.in), "input %q", tc.in)
	}
}
