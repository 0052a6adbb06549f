package sheet

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical DD/MM/YYYY form produced by NormalizeDate.
const DateLayout = "02/01/2006"

var canonicalDate = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)

var errorMarkers = map[string]struct{}{
	"#N/A":     {},
	"N/A":      {},
	"#REF!":    {},
	"#VALUE!":  {},
	"#VALEUR!": {},
}

var invisible = strings.NewReplacer(
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\u2060", "",
	"\ufeff", "",
	"\u00a0", " ",
	"\u202f", " ",
	"\u2007", " ",
)

// CleanText strips invisible characters, collapses whitespace and maps
// spreadsheet error markers to the empty string.
func CleanText(v string) string {
	s := strings.Join(strings.Fields(invisible.Replace(v)), " ")
	if _, ok := errorMarkers[strings.ToUpper(s)]; ok {
		return ""
	}
	return s
}

// NormalizeDate rewrites YYYY-MM-DD and D/M/Y inputs to DD/MM/YYYY.
// Input it cannot reshape is returned cleaned but otherwise unchanged.
func NormalizeDate(v string) string {
	s := CleanText(v)
	if len(s) >= 10 && strings.Contains(s, "-") {
		parts := strings.Split(s[:10], "-")
		if len(parts) == 3 {
			return pad2(parts[2]) + "/" + pad2(parts[1]) + "/" + parts[0]
		}
		return s
	}
	if strings.Contains(s, "/") {
		parts := strings.Split(s, "/")
		if len(parts) != 3 {
			return s
		}
		year := parts[2]
		if fields := strings.Fields(year); len(fields) > 0 {
			year = fields[0]
		}
		if len(year) == 2 {
			year = "20" + year
		}
		return pad2(strings.TrimSpace(parts[0])) + "/" + pad2(strings.TrimSpace(parts[1])) + "/" + year
	}
	return s
}

// ParseDate accepts only canonical DD/MM/YYYY strings naming a real day.
func ParseDate(s string) (time.Time, bool) {
	if !canonicalDate.MatchString(s) {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseNumber reads a count cell. Comma is the decimal separator and every
// other non-numeric character is dropped. The longest leading number is
// used, so "1.234,5" reads as 1 and "10-" as 10. Invalid or negative values
// yield 0.
func ParseNumber(v string) int {
	var b strings.Builder
	for _, r := range CleanText(v) {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		case r == ',':
			b.WriteRune('.')
		}
	}
	f, err := strconv.ParseFloat(numericPrefix(b.String()), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	n := int(math.Round(f))
	if n < 0 {
		return 0
	}
	return n
}

// numericPrefix returns the longest prefix of s shaped like [-]digits[.digits].
func numericPrefix(s string) string {
	end := 0
	if strings.HasPrefix(s, "-") {
		end = 1
	}
	digits := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
		digits++
	}
	if end < len(s) && s[end] == '.' {
		frac := end + 1
		for frac < len(s) && s[frac] >= '0' && s[frac] <= '9' {
			frac++
		}
		if frac > end+1 || digits > 0 {
			digits += frac - end - 1
			end = frac
		}
	}
	if digits == 0 {
		return ""
	}
	return s[:end]
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
