package sheet

// Columns pins the position of each consumed field in an export row.
type Columns struct {
	Date   int
	Code   int
	Name   int
	Fixed  int
	Mobile int
	Total  int
}

// DefaultColumns is the layout of the collection spreadsheet:
// date, code, site, -, -, fixed, -, mobile, total.
var DefaultColumns = Columns{Date: 0, Code: 1, Name: 2, Fixed: 5, Mobile: 7, Total: 8}

// Row is one export line with its consumed fields named.
type Row struct {
	Date   string
	Code   string
	Name   string
	Fixed  string
	Mobile string
	Total  string
}

// Map reads the configured positions out of cells. Missing cells are empty.
func (c Columns) Map(cells []string) Row {
	return Row{
		Date:   cell(cells, c.Date),
		Code:   cell(cells, c.Code),
		Name:   cell(cells, c.Name),
		Fixed:  cell(cells, c.Fixed),
		Mobile: cell(cells, c.Mobile),
		Total:  cell(cells, c.Total),
	}
}

func cell(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}
