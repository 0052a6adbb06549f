// Package sheet turns the spreadsheet CSV export into typed rows: it splits
// raw text into cells, maps fixed column positions onto a row schema and
// normalizes individual cell values (text, dates, counts).
package sheet
