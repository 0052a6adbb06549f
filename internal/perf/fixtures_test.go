package perf

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hemodash/hemodash/internal/registry"
)

// yearExport renders one row per site per working day of 2026 up to the
// given day, in the column layout of the collection sheet.
func yearExport(t testing.TB, reg *registry.Registry, until time.Time) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("Date,Code,Site,Prevu,Ecart,Fixe,Poche,Mobile,Total\n")
	for d := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC); !d.After(until); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Sunday {
			continue
		}
		for i, s := range reg.Sites() {
			fixed := 10 + (d.YearDay()+i)%25
			mobile := (d.YearDay() * (i + 1)) % 17
			fmt.Fprintf(&b, "%s,%s,%s,,,%d,,%d,%d\n", d.Format("02/01/2006"), s.Code, s.Name, fixed, mobile, fixed+mobile)
		}
	}
	return b.String()
}

func defaultRegistry(t testing.TB) *registry.Registry {
	t.Helper()
	reg, err := registry.Default()
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	return reg
}
