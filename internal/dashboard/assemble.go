package dashboard

import (
	"math"
	"sort"
	"time"

	"github.com/hemodash/hemodash/internal/registry"
	"github.com/hemodash/hemodash/internal/sheet"
)

// DefaultWorkingDaysPerYear divides annual objectives into daily ones.
const DefaultWorkingDaysPerYear = 300

// Tally is a running fixed/mobile/total sum.
type Tally struct {
	Fixed  int
	Mobile int
	Total  int
}

// Add accumulates one row.
func (t *Tally) Add(fixed, mobile, total int) {
	t.Fixed += fixed
	t.Mobile += mobile
	t.Total += total
}

// SiteAccumulator holds the month and year tallies of one site, both
// anchored on the latest reporting date.
type SiteAccumulator struct {
	Site  registry.Site
	Month Tally
	Year  Tally
}

type dayEntry struct {
	site  registry.Site
	tally Tally
}

// DayBucket gathers the rows of one calendar date. Rows of the same site
// are summed into a single entry.
type DayBucket struct {
	Date    time.Time
	entries []*dayEntry
	index   map[string]int
}

// NewDayBucket starts an empty bucket for date.
func NewDayBucket(date time.Time) *DayBucket {
	return &DayBucket{Date: date, index: make(map[string]int)}
}

// Add records a resolved row.
func (b *DayBucket) Add(site registry.Site, fixed, mobile, total int) {
	i, ok := b.index[site.Code]
	if !ok {
		i = len(b.entries)
		b.index[site.Code] = i
		b.entries = append(b.entries, &dayEntry{site: site})
	}
	b.entries[i].tally.Add(fixed, mobile, total)
}

// Site returns the tally of a site for this day.
func (b *DayBucket) Site(code string) (Tally, bool) {
	if b == nil {
		return Tally{}, false
	}
	i, ok := b.index[code]
	if !ok {
		return Tally{}, false
	}
	return b.entries[i].tally, true
}

// Assembler shapes accumulated rows into Data.
type Assembler struct {
	WorkingDaysPerYear int
}

// NewAssembler returns an Assembler with the default working-day divisor.
func NewAssembler() Assembler {
	return Assembler{WorkingDaysPerYear: DefaultWorkingDaysPerYear}
}

// DailyObjective is the per-day share of a site's annual objective.
func (a Assembler) DailyObjective(site registry.Site) int {
	days := a.WorkingDaysPerYear
	if days <= 0 {
		days = DefaultWorkingDaysPerYear
	}
	return int(math.Round(float64(site.AnnualObjective) / float64(days)))
}

// MonthlyObjective is a twelfth of a site's annual objective.
func MonthlyObjective(site registry.Site) int {
	return int(math.Round(float64(site.AnnualObjective) / 12))
}

// NetworkDailyObjective is the per-day share of a network annual objective,
// rounded once.
func (a Assembler) NetworkDailyObjective(annual int) int {
	return a.DailyObjective(registry.Site{AnnualObjective: annual})
}

// NetworkMonthlyObjective is a twelfth of a network annual objective,
// rounded once.
func NetworkMonthlyObjective(annual int) int {
	return MonthlyObjective(registry.Site{AnnualObjective: annual})
}

// Assemble builds Data from the day buckets and per-site accumulators.
// Sites keep accumulator order; regions appear in order of their first site.
// Realized figures are sums over sites. The network daily and monthly
// objectives derive from the summed annual objective, so small per-site
// objectives that round to zero still count.
func (a Assembler) Assemble(latest time.Time, days []*DayBucket, sites []*SiteAccumulator) *Data {
	latestKey := latest.Format(sheet.DateLayout)

	var latestDay *DayBucket
	history := make([]DayRecord, 0, len(days))
	sorted := make([]*DayBucket, len(days))
	copy(sorted, days)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.After(sorted[j].Date) })
	for _, b := range sorted {
		key := b.Date.Format(sheet.DateLayout)
		if key == latestKey {
			latestDay = b
		}
		history = append(history, a.dayRecord(key, b))
	}

	regions := make([]Region, 0)
	regionIdx := make(map[string]int)
	for _, acc := range sites {
		rec := a.siteRecord(acc, latestDay)
		i, ok := regionIdx[rec.Region]
		if !ok {
			i = len(regions)
			regionIdx[rec.Region] = i
			regions = append(regions, Region{Name: rec.Region})
		}
		regions[i].Sites = append(regions[i].Sites, rec)
	}

	annual := AnnualStats(regions)
	daily := DailyStats(regions)
	daily = NewStats(daily.Realized, a.NetworkDailyObjective(annual.Objective), daily.Fixed, daily.Mobile)
	monthly := MonthlyStats(regions)
	monthly = NewStats(monthly.Realized, NetworkMonthlyObjective(annual.Objective), monthly.Fixed, monthly.Mobile)

	return &Data{
		Date:         latestKey,
		Month:        int(latest.Month()),
		Year:         latest.Year(),
		Daily:        daily,
		Monthly:      monthly,
		Annual:       annual,
		DailyHistory: history,
		Regions:      regions,
	}
}

func (a Assembler) dayRecord(key string, b *DayBucket) DayRecord {
	sites := make([]DaySite, 0, len(b.entries))
	for _, e := range b.entries {
		sites = append(sites, DaySite{
			Code:      e.site.Code,
			Name:      e.site.Name,
			Region:    e.site.Region,
			Fixed:     e.tally.Fixed,
			Mobile:    e.tally.Mobile,
			Total:     e.tally.Total,
			Objective: a.DailyObjective(e.site),
			Manager:   e.site.Manager,
			Email:     e.site.Email,
			Phone:     e.site.Phone,
		})
	}
	return DayRecord{Date: key, Stats: DayStats(sites), Sites: sites}
}

func (a Assembler) siteRecord(acc *SiteAccumulator, latestDay *DayBucket) SiteRecord {
	today, _ := latestDay.Site(acc.Site.Code)
	monthly := MonthlyObjective(acc.Site)
	return SiteRecord{
		Code:             acc.Site.Code,
		Name:             acc.Site.Name,
		Region:           acc.Site.Region,
		Fixed:            today.Fixed,
		Mobile:           today.Mobile,
		TotalDay:         today.Total,
		FixedMonth:       acc.Month.Fixed,
		MobileMonth:      acc.Month.Mobile,
		TotalMonth:       acc.Month.Total,
		DailyObjective:   a.DailyObjective(acc.Site),
		MonthlyObjective: monthly,
		FixedYear:        acc.Year.Fixed,
		MobileYear:       acc.Year.Mobile,
		AnnualRealized:   acc.Year.Total,
		AnnualObjective:  acc.Site.AnnualObjective,
		Percentage:       Percent(acc.Month.Total, monthly),
		Manager:          acc.Site.Manager,
		Email:            acc.Site.Email,
		Phone:            acc.Site.Phone,
	}
}
