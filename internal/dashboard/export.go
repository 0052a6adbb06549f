package dashboard

import (
	"encoding/csv"
	"io"
	"strconv"
)

// WriteSitesCSV emits one row per site with its day, month and year figures.
func WriteSitesCSV(w io.Writer, data *Data) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{
		"Region", "Code", "Site", "Date",
		"Fixed", "Mobile", "Total", "Daily Objective",
		"Month Total", "Monthly Objective",
		"Year Total", "Annual Objective", "Percentage",
		"Manager", "Email", "Phone",
	}); err != nil {
		return err
	}
	if data == nil {
		writer.Flush()
		return writer.Error()
	}
	for _, region := range data.Regions {
		for _, s := range region.Sites {
			if err := writer.Write([]string{
				region.Name, s.Code, s.Name, data.Date,
				itoa(s.Fixed), itoa(s.Mobile), itoa(s.TotalDay), itoa(s.DailyObjective),
				itoa(s.TotalMonth), itoa(s.MonthlyObjective),
				itoa(s.AnnualRealized), itoa(s.AnnualObjective), formatPercent(s.Percentage),
				s.Manager, s.Email, s.Phone,
			}); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteHistoryCSV emits the per-day network totals, newest first.
func WriteHistoryCSV(w io.Writer, data *Data) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Date", "Fixed", "Mobile", "Total", "Objective", "Percentage"}); err != nil {
		return err
	}
	if data != nil {
		for _, day := range data.DailyHistory {
			if err := writer.Write([]string{
				day.Date,
				itoa(day.Stats.Fixed),
				itoa(day.Stats.Mobile),
				itoa(day.Stats.Realized),
				itoa(day.Stats.Objective),
				formatPercent(day.Stats.Percentage),
			}); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

func itoa(v int) string {
	return strconv.Itoa(v)
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
