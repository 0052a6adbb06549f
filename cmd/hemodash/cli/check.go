package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hemodash/hemodash/internal/dashboard"
	"github.com/hemodash/hemodash/internal/ingest"
	"github.com/hemodash/hemodash/internal/registry"
)

// Exit codes of the check command.
const (
	ExitOK         = 0
	ExitError      = 1
	ExitStructural = 2
	ExitSkipped    = 10
)

// CheckOptions defines the flags of the check command.
type CheckOptions struct {
	Path               string
	RegistryPath       string
	WorkingDaysPerYear int
	JSONOutput         bool
	Stdin              io.Reader
	Stdout             io.Writer
	Stderr             io.Writer
}

// CheckSummary is the JSON output of the check command.
type CheckSummary struct {
	OK      bool            `json:"ok"`
	Date    string          `json:"date"`
	Report  ingest.Report   `json:"report"`
	Daily   dashboard.Stats `json:"daily"`
	Monthly dashboard.Stats `json:"monthly"`
	Annual  dashboard.Stats `json:"annual"`
	Missing []string        `json:"missing"`
}

// CheckCommand ingests a sheet export offline and prints what the dashboard
// would show. It exits with ExitSkipped when rows were dropped.
func CheckCommand(ctx context.Context, opts CheckOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Path == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "check: --file is required (use - for stdin)")
		return ExitError
	}

	raw, err := readInput(opts.Path, opts.Stdin)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check: %v\n", err)
		return ExitError
	}
	reg, err := registry.Load(opts.RegistryPath)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check: %v\n", err)
		return ExitError
	}
	asm := dashboard.NewAssembler()
	if opts.WorkingDaysPerYear > 0 {
		asm.WorkingDaysPerYear = opts.WorkingDaysPerYear
	}

	if err := ctx.Err(); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check: %v\n", err)
		return ExitError
	}
	res, err := ingest.NewPipeline(reg, ingest.WithAssembler(asm)).Ingest(string(raw), "", true)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check: %v\n", err)
		if errors.Is(err, ingest.ErrStructure) {
			return ExitStructural
		}
		return ExitError
	}

	summary := buildCheckSummary(res)
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "check: encode json: %v\n", err)
			return ExitError
		}
	} else {
		renderCheckHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return ExitSkipped
	}
	return ExitOK
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func buildCheckSummary(res ingest.Result) CheckSummary {
	summary := CheckSummary{
		OK:      res.Report.SkippedDate == 0 && res.Report.SkippedSite == 0,
		Report:  res.Report,
		Missing: []string{},
	}
	if res.Data == nil {
		return summary
	}
	summary.Date = res.Data.Date
	summary.Daily = res.Data.Daily
	summary.Monthly = res.Data.Monthly
	summary.Annual = res.Data.Annual
	for _, s := range res.Data.MissingReporters() {
		summary.Missing = append(summary.Missing, s.Name)
	}
	return summary
}

func renderCheckHuman(out io.Writer, s CheckSummary) {
	_, _ = fmt.Fprintf(out, "Latest date: %s\n", s.Date)
	_, _ = fmt.Fprintf(out, "Rows: %d read, %d accepted, %d bad date, %d unknown site\n",
		s.Report.Rows, s.Report.Accepted, s.Report.SkippedDate, s.Report.SkippedSite)
	for _, line := range []struct {
		label string
		stats dashboard.Stats
	}{
		{"Day", s.Daily},
		{"Month", s.Monthly},
		{"Year", s.Annual},
	} {
		_, _ = fmt.Fprintf(out, "%-6s %d / %d (%.1f%%) fixed %d mobile %d\n",
			line.label, line.stats.Realized, line.stats.Objective, line.stats.Percentage, line.stats.Fixed, line.stats.Mobile)
	}
	if len(s.Missing) == 0 {
		_, _ = fmt.Fprintln(out, "Every site reported on the latest date.")
		return
	}
	_, _ = fmt.Fprintf(out, "%d site(s) without a record:\n", len(s.Missing))
	for _, name := range s.Missing {
		_, _ = fmt.Fprintf(out, " - %s\n", name)
	}
}
