package sheet

import "strings"

// Tokenize splits CSV text into rows of raw cells. The delimiter is ';' when
// the first line contains one and ',' otherwise; it applies to every row.
// A double quote toggles quoted mode and is not kept. Doubled quotes are
// not treated as escapes.
func Tokenize(text string) [][]string {
	lines := strings.Split(text, "\n")
	rows := make([][]string, 0, len(lines))
	var delim rune
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if delim == 0 {
			delim = ','
			if strings.ContainsRune(line, ';') {
				delim = ';'
			}
		}
		rows = append(rows, splitLine(line, delim))
	}
	return rows
}

func splitLine(line string, delim rune) []string {
	cells := make([]string, 0, 12)
	var cur strings.Builder
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == delim && !quoted:
			cells = append(cells, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(cells, cur.String())
}
