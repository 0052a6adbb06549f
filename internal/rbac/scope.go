package rbac

import (
	"strings"

	"github.com/samber/lo"

	"github.com/hemodash/hemodash/internal/dashboard"
)

// Scope derives the view of data visible to user. Admins, unauthenticated
// callers, national PRES users and any role or assignment it cannot
// interpret get data itself. Restricted views are rebuilt from new slices;
// data is never modified.
func Scope(data *dashboard.Data, user *User) *dashboard.Data {
	if data == nil || user == nil {
		return data
	}
	switch user.Role {
	case RolePres:
		region := strings.TrimSpace(user.Region)
		if region == "" || strings.EqualFold(region, AllRegions) {
			return data
		}
		return restrict(data,
			func(r dashboard.Region) bool { return strings.EqualFold(r.Name, region) },
			func(string) bool { return true },
			func(s dashboard.DaySite) bool { return strings.EqualFold(s.Region, region) },
		)
	case RoleAgent:
		site := strings.TrimSpace(user.Site)
		if site == "" {
			return data
		}
		return restrict(data,
			func(dashboard.Region) bool { return true },
			func(name string) bool { return strings.EqualFold(name, site) },
			func(s dashboard.DaySite) bool { return strings.EqualFold(s.Name, site) },
		)
	default:
		return data
	}
}

func restrict(data *dashboard.Data, keepRegion func(dashboard.Region) bool, keepSite func(string) bool, keepDaySite func(dashboard.DaySite) bool) *dashboard.Data {
	out := *data

	regions := make([]dashboard.Region, 0, 1)
	for _, r := range data.Regions {
		if !keepRegion(r) {
			continue
		}
		sites := lo.Filter(r.Sites, func(s dashboard.SiteRecord, _ int) bool { return keepSite(s.Name) })
		if len(sites) == 0 {
			continue
		}
		regions = append(regions, dashboard.Region{Name: r.Name, Sites: sites})
	}
	out.Regions = regions

	out.DailyHistory = make([]dashboard.DayRecord, 0, len(data.DailyHistory))
	for _, rec := range data.DailyHistory {
		sites := lo.Filter(rec.Sites, func(s dashboard.DaySite, _ int) bool { return keepDaySite(s) })
		out.DailyHistory = append(out.DailyHistory, dashboard.DayRecord{
			Date:  rec.Date,
			Stats: dashboard.DayStats(sites),
			Sites: sites,
		})
	}

	out.Daily = dashboard.DailyStats(regions)
	out.Monthly = dashboard.MonthlyStats(regions)
	out.Annual = dashboard.AnnualStats(regions)
	return &out
}
