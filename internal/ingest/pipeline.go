package ingest

import (
	"time"

	"github.com/hemodash/hemodash/internal/dashboard"
	"github.com/hemodash/hemodash/internal/registry"
	"github.com/hemodash/hemodash/internal/sheet"
)

// Result is the outcome of one ingest call. When Unchanged is set Data is
// nil and the caller keeps its previous dashboard.
type Result struct {
	Data      *dashboard.Data
	Unchanged bool
	Report    Report
}

// Report counts how the source rows were used.
type Report struct {
	Rows        int    `json:"rows"`
	Accepted    int    `json:"accepted"`
	SkippedDate int    `json:"skippedDate"`
	SkippedSite int    `json:"skippedSite"`
	LatestDate  string `json:"latestDate"`
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithColumns overrides the export column layout.
func WithColumns(c sheet.Columns) Option {
	return func(p *Pipeline) { p.columns = c }
}

// WithAssembler overrides the aggregate assembler.
func WithAssembler(a dashboard.Assembler) Option {
	return func(p *Pipeline) { p.assembler = a }
}

// Pipeline turns raw export text into dashboard Data.
type Pipeline struct {
	registry  *registry.Registry
	columns   sheet.Columns
	assembler dashboard.Assembler
}

// NewPipeline wires a pipeline over the site registry.
func NewPipeline(reg *registry.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry:  reg,
		columns:   sheet.DefaultColumns,
		assembler: dashboard.NewAssembler(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type datedRow struct {
	row  sheet.Row
	date time.Time
}

// Ingest parses rawText into Data. Identical text is reported as Unchanged
// unless force is set. Rows with a bad date or an unknown site are skipped
// and counted; only structural problems fail the call.
func (p *Pipeline) Ingest(rawText, previousRawText string, force bool) (Result, error) {
	if !force && rawText == previousRawText {
		return Result{Unchanged: true}, nil
	}

	rows := sheet.Tokenize(rawText)
	if len(rows) < 2 {
		return Result{}, ErrTooFewRows
	}

	report := Report{Rows: len(rows) - 1}
	dated := make([]datedRow, 0, len(rows)-1)
	var latest time.Time
	for _, cells := range rows[1:] {
		row := p.columns.Map(cells)
		date, ok := sheet.ParseDate(sheet.NormalizeDate(row.Date))
		if !ok {
			report.SkippedDate++
			continue
		}
		if date.After(latest) {
			latest = date
		}
		dated = append(dated, datedRow{row: row, date: date})
	}
	if len(dated) == 0 {
		return Result{Report: report}, ErrNoDatedRows
	}
	report.LatestDate = latest.Format(sheet.DateLayout)

	sites := p.registry.Sites()
	accs := make([]*dashboard.SiteAccumulator, 0, len(sites))
	byCode := make(map[string]*dashboard.SiteAccumulator, len(sites))
	for _, s := range sites {
		acc := &dashboard.SiteAccumulator{Site: s}
		accs = append(accs, acc)
		byCode[s.Code] = acc
	}

	days := make([]*dashboard.DayBucket, 0)
	dayIdx := make(map[time.Time]*dashboard.DayBucket)
	for _, d := range dated {
		site, ok := p.resolve(d.row)
		if !ok {
			report.SkippedSite++
			continue
		}
		report.Accepted++

		fixed := sheet.ParseNumber(d.row.Fixed)
		mobile := sheet.ParseNumber(d.row.Mobile)
		total := sheet.ParseNumber(d.row.Total)
		if total == 0 {
			total = fixed + mobile
		}

		bucket, ok := dayIdx[d.date]
		if !ok {
			bucket = dashboard.NewDayBucket(d.date)
			dayIdx[d.date] = bucket
			days = append(days, bucket)
		}
		bucket.Add(site, fixed, mobile, total)

		if d.date.Year() != latest.Year() {
			continue
		}
		acc := byCode[site.Code]
		acc.Year.Add(fixed, mobile, total)
		if d.date.Month() == latest.Month() {
			acc.Month.Add(fixed, mobile, total)
		}
	}
	if report.Accepted == 0 {
		return Result{Report: report}, ErrNoResolvedRows
	}

	return Result{Data: p.assembler.Assemble(latest, days, accs), Report: report}, nil
}

func (p *Pipeline) resolve(row sheet.Row) (registry.Site, bool) {
	if site, ok := p.registry.Resolve(sheet.CleanText(row.Code)); ok {
		return site, true
	}
	return p.registry.Resolve(sheet.CleanText(row.Name))
}
