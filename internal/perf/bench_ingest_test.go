package perf

import (
	"sort"
	"testing"
	"time"

	"github.com/hemodash/hemodash/internal/ingest"
	"github.com/hemodash/hemodash/internal/rbac"
)

func BenchmarkIngestYear(b *testing.B) {
	reg := defaultRegistry(b)
	raw := yearExport(b, reg, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC))
	pipeline := ingest.NewPipeline(reg)
	b.SetBytes(int64(len(raw)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := pipeline.Ingest(raw, "", true); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkScopeAgent(b *testing.B) {
	reg := defaultRegistry(b)
	res, err := ingest.NewPipeline(reg).Ingest(yearExport(b, reg, time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)), "", true)
	if err != nil {
		b.Fatal(err)
	}
	user := &rbac.User{ID: 1, Role: rbac.RoleAgent, Site: "CRTS DE BOUAKE"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = rbac.Scope(res.Data, user)
	}
}

func TestIngestLatencyBudget(t *testing.T) {
	if testing.Short() {
		t.Skip("latency budget skipped in short mode")
	}
	reg := defaultRegistry(t)
	raw := yearExport(t, reg, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC))
	pipeline := ingest.NewPipeline(reg)

	samples := make([]time.Duration, 0, 10)
	for i := 0; i < 10; i++ {
		started := time.Now()
		res, err := pipeline.Ingest(raw, "", true)
		samples = append(samples, time.Since(started))
		if err != nil {
			t.Fatalf("ingest: %v", err)
		}
		if res.Report.SkippedDate+res.Report.SkippedSite != 0 {
			t.Fatalf("generated export should ingest cleanly: %+v", res.Report)
		}
	}
	if p95 := percentile95(samples); p95 > 2*time.Second {
		t.Fatalf("full-year ingest latency regression: p95=%s threshold=2s", p95)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
