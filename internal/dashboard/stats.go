package dashboard

import "github.com/samber/lo"

// Percent returns realized/objective*100, or 0 without an objective.
func Percent(realized, objective int) float64 {
	if objective <= 0 {
		return 0
	}
	return float64(realized) / float64(objective) * 100
}

// NewStats builds Stats and derives the percentage.
func NewStats(realized, objective, fixed, mobile int) Stats {
	return Stats{
		Realized:   realized,
		Objective:  objective,
		Percentage: Percent(realized, objective),
		Fixed:      fixed,
		Mobile:     mobile,
	}
}

// DayStats sums the given day sites.
func DayStats(sites []DaySite) Stats {
	return NewStats(
		lo.SumBy(sites, func(s DaySite) int { return s.Total }),
		lo.SumBy(sites, func(s DaySite) int { return s.Objective }),
		lo.SumBy(sites, func(s DaySite) int { return s.Fixed }),
		lo.SumBy(sites, func(s DaySite) int { return s.Mobile }),
	)
}

// AllSites flattens regions into their sites.
func AllSites(regions []Region) []SiteRecord {
	return lo.FlatMap(regions, func(r Region, _ int) []SiteRecord { return r.Sites })
}

// DailyStats sums the latest-day figures of the given regions.
func DailyStats(regions []Region) Stats {
	sites := AllSites(regions)
	return NewStats(
		lo.SumBy(sites, func(s SiteRecord) int { return s.TotalDay }),
		lo.SumBy(sites, func(s SiteRecord) int { return s.DailyObjective }),
		lo.SumBy(sites, func(s SiteRecord) int { return s.Fixed }),
		lo.SumBy(sites, func(s SiteRecord) int { return s.Mobile }),
	)
}

// MonthlyStats sums the month-to-date figures of the given regions.
func MonthlyStats(regions []Region) Stats {
	sites := AllSites(regions)
	return NewStats(
		lo.SumBy(sites, func(s SiteRecord) int { return s.TotalMonth }),
		lo.SumBy(sites, func(s SiteRecord) int { return s.MonthlyObjective }),
		lo.SumBy(sites, func(s SiteRecord) int { return s.FixedMonth }),
		lo.SumBy(sites, func(s SiteRecord) int { return s.MobileMonth }),
	)
}

// AnnualStats sums the year-to-date figures of the given regions.
func AnnualStats(regions []Region) Stats {
	sites := AllSites(regions)
	return NewStats(
		lo.SumBy(sites, func(s SiteRecord) int { return s.AnnualRealized }),
		lo.SumBy(sites, func(s SiteRecord) int { return s.AnnualObjective }),
		lo.SumBy(sites, func(s SiteRecord) int { return s.FixedYear }),
		lo.SumBy(sites, func(s SiteRecord) int { return s.MobileYear }),
	)
}
