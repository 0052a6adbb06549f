package dashboard

import (
	"slices"

	"github.com/samber/lo"
)

// MissingReporters lists the sites with nothing recorded on the latest date.
func (d *Data) MissingReporters() []SiteRecord {
	if d == nil {
		return nil
	}
	return lo.Filter(AllSites(d.Regions), func(s SiteRecord, _ int) bool { return s.TotalDay == 0 })
}

// Day returns the history record for a DD/MM/YYYY date.
func (d *Data) Day(date string) (DayRecord, bool) {
	if d == nil {
		return DayRecord{}, false
	}
	return lo.Find(d.DailyHistory, func(r DayRecord) bool { return r.Date == date })
}

// Clone returns a deep copy.
func (d *Data) Clone() *Data {
	if d == nil {
		return nil
	}
	out := *d
	out.DailyHistory = slices.Clone(d.DailyHistory)
	for i := range out.DailyHistory {
		out.DailyHistory[i].Sites = slices.Clone(out.DailyHistory[i].Sites)
	}
	out.Regions = slices.Clone(d.Regions)
	for i := range out.Regions {
		out.Regions[i].Sites = slices.Clone(out.Regions[i].Sites)
	}
	return &out
}
