package dashboard

// Stats is a realized-versus-objective figure with its fixed/mobile split.
type Stats struct {
	Realized   int     `json:"realized"`
	Objective  int     `json:"objective"`
	Percentage float64 `json:"percentage"`
	Fixed      int     `json:"fixed"`
	Mobile     int     `json:"mobile"`
}

// DaySite is one site's contribution to a day record. Contact fields are
// carried for reminder and follow-up views.
type DaySite struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Region    string `json:"region"`
	Fixed     int    `json:"fixed"`
	Mobile    int    `json:"mobile"`
	Total     int    `json:"total"`
	Objective int    `json:"objective"`
	Manager   string `json:"manager,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// DayRecord aggregates every site that reported on one calendar date.
// Stats always equal the sum over Sites.
type DayRecord struct {
	Date  string    `json:"date"`
	Stats Stats     `json:"stats"`
	Sites []DaySite `json:"sites"`
}

// SiteRecord carries the latest-day and month-to-date figures of a site.
type SiteRecord struct {
	Code             string  `json:"code"`
	Name             string  `json:"name"`
	Region           string  `json:"region"`
	Fixed            int     `json:"fixe"`
	Mobile           int     `json:"mobile"`
	TotalDay         int     `json:"totalJour"`
	FixedMonth       int     `json:"fixeMois"`
	MobileMonth      int     `json:"mobileMois"`
	TotalMonth       int     `json:"totalMois"`
	DailyObjective   int     `json:"objJour"`
	MonthlyObjective int     `json:"objMensuel"`
	FixedYear        int     `json:"fixeAnnuel"`
	MobileYear       int     `json:"mobileAnnuel"`
	AnnualRealized   int     `json:"annualRealized"`
	AnnualObjective  int     `json:"objAnnuel"`
	Percentage       float64 `json:"percentage"`
	Manager          string  `json:"manager,omitempty"`
	Email            string  `json:"email,omitempty"`
	Phone            string  `json:"phone,omitempty"`
}

// Region groups the sites of one registry region.
type Region struct {
	Name  string       `json:"name"`
	Sites []SiteRecord `json:"sites"`
}

// Data is the assembled dashboard. Date is the latest reporting date found
// in the source, never the wall clock. Consumers treat it as immutable.
type Data struct {
	Date         string      `json:"date"`
	Month        int         `json:"month"`
	Year         int         `json:"year"`
	Daily        Stats       `json:"daily"`
	Monthly      Stats       `json:"monthly"`
	Annual       Stats       `json:"annual"`
	DailyHistory []DayRecord `json:"dailyHistory"`
	Regions      []Region    `json:"regions"`
}
