package sheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeCommaAndBlankLines(t *testing.T) {
	rows := Tokenize("date,code,site\r\n\r\n05/03/2026,9, CDTS \n   \n06/03/2026,1,CRTS\n")
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"date", "code", "site"}, rows[0])
	assert.Equal(t, []string{"05/03/2026", "9", " CDTS "}, rows[1])
	assert.Equal(t, []string{"06/03/2026", "1", "CRTS"}, rows[2])
}

func TestTokenizeDetectsSemicolonFromFirstLine(t *testing.T) {
	rows := Tokenize("date;code;total\n05/03/2026;9;1,5\n")
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"05/03/2026", "9", "1,5"}, rows[1])

	// Comma header: semicolons later on are literal text.
	rows = Tokenize("a,b\nx;y,z\n")
	assert.Equal(t, []string{"x;y", "z"}, rows[1])
}

func TestTokenizeQuotesToggle(t *testing.T) {
	rows := Tokenize("a,b,c\n\"1,234\",\"CRTS, annexe\",x\n")
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1,234", "CRTS, annexe", "x"}, rows[1])

	rows = Tokenize("a,b\n\"say \"\"hi\"\"\",2\n")
	assert.Equal(t, []string{"say hi", "2"}, rows[1])
}

func TestTokenizeEmpty(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("\n\r\n  \n"))
}

func TestColumnsMap(t *testing.T) {
	row := DefaultColumns.Map([]string{"05/03/2026", "9", "CDTS DE BINGERVILLE", "", "", "3", "", "2", "5", "extra"})
	assert.Equal(t, Row{Date: "05/03/2026", Code: "9", Name: "CDTS DE BINGERVILLE", Fixed: "3", Mobile: "2", Total: "5"}, row)

	short := DefaultColumns.Map([]string{"05/03/2026", "9"})
	assert.Equal(t, Row{Date: "05/03/2026", Code: "9"}, short)
}
