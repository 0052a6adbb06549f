package dashboardhttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemodash/hemodash/internal/dashboard"
	"github.com/hemodash/hemodash/internal/ingest"
	"github.com/hemodash/hemodash/internal/rbac"
	"github.com/hemodash/hemodash/internal/registry"
	"github.com/hemodash/hemodash/internal/shared"
	"github.com/hemodash/hemodash/internal/source"
	"github.com/hemodash/hemodash/internal/syncer"
	"github.com/hemodash/hemodash/jobs"
)

const sheetCSV = "date,code,site,x,y,fixe,z,mobile,total\n" +
	"04/03/2026,1,CRTS DE TREICHVILLE,,,40,,10,50\n" +
	"05/03/2026,1,CRTS DE TREICHVILLE,,,30,,5,35\n" +
	"05/03/2026,5,CRTS DE BOUAKE,,,20,,0,20\n"

type stubSnapshots struct {
	snap    *syncer.Snapshot
	err     error
	outcome syncer.Outcome
	syncErr error
	forced  []bool
}

func (s *stubSnapshots) Current(context.Context) (*syncer.Snapshot, error) {
	if s.snap == nil && s.err == nil {
		return nil, syncer.ErrNoSnapshot
	}
	return s.snap, s.err
}

func (s *stubSnapshots) Sync(_ context.Context, force bool) (syncer.Outcome, error) {
	s.forced = append(s.forced, force)
	return s.outcome, s.syncErr
}

func (s *stubSnapshots) Status() syncer.Status {
	return syncer.Status{Version: 3, Report: ingest.Report{Accepted: 3}}
}

type stubQueue struct {
	mu       sync.Mutex
	payloads []jobs.RecordPayload
	err      error
}

func (q *stubQueue) EnqueueRecord(_ context.Context, p jobs.RecordPayload) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	q.payloads = append(q.payloads, p)
	return &asynq.TaskInfo{ID: "record:" + p.IdempotencyKey}, nil
}

type stubIdem struct {
	seen    map[string]bool
	deleted []string
}

func (s *stubIdem) CheckAndInsert(_ context.Context, key, _ string) error {
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	if s.seen[key] {
		return shared.ErrIdempotencyConflict
	}
	s.seen[key] = true
	return nil
}

func (s *stubIdem) Delete(_ context.Context, key string) error {
	delete(s.seen, key)
	s.deleted = append(s.deleted, key)
	return nil
}

type stubAudit struct{ entries []shared.AuditLog }

func (a *stubAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

type harness struct {
	router    http.Handler
	sessions  *shared.SessionManager
	snapshots *stubSnapshots
	queue     *stubQueue
	idem      *stubIdem
	audit     *stubAudit
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	res, err := ingest.NewPipeline(reg).Ingest(sheetCSV, "", true)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := &harness{
		sessions: shared.NewSessionManager(client, "test_session", "secret", time.Hour, false),
		snapshots: &stubSnapshots{snap: &syncer.Snapshot{
			Data:     res.Data,
			Report:   res.Report,
			Version:  7,
			SyncedAt: time.Date(2026, 3, 5, 18, 0, 0, 0, time.UTC),
		}},
		queue: &stubQueue{},
		idem:  &stubIdem{},
		audit: &stubAudit{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(Config{
		Logger:      logger,
		Snapshots:   h.snapshots,
		Registry:    reg,
		Queue:       h.queue,
		Idempotency: h.idem,
		Audit:       h.audit,
	})
	handler.now = func() time.Time { return time.Date(2026, 3, 6, 8, 0, 0, 0, time.UTC) }

	r := chi.NewRouter()
	r.Route("/api", func(api chi.Router) {
		handler.MountRoutes(api, rbac.Middleware{Logger: logger})
	})
	h.router = r
	return h
}

func (h *harness) do(t *testing.T, user *rbac.User, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	sess, err := h.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	rbac.StoreUser(sess, user)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

var (
	admin = &rbac.User{ID: 1, Email: "admin@hemodash.test", Role: rbac.RoleAdmin}
	pres  = &rbac.User{ID: 2, Email: "pres@hemodash.test", Role: rbac.RolePres, Region: "CENTRE"}
	agent = &rbac.User{ID: 3, Email: "agent@hemodash.test", Role: rbac.RoleAgent, Site: "CRTS DE TREICHVILLE"}
)

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) dashboard.Data {
	t.Helper()
	var data dashboard.Data
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	return data
}

func TestDashboardRequiresSession(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, nil, http.MethodGet, "/api/dashboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDashboardScopedByRole(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, admin, http.MethodGet, "/api/dashboard", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7", rec.Header().Get("X-Dashboard-Version"))
	full := decodeData(t, rec)
	assert.Equal(t, "05/03/2026", full.Date)
	assert.Equal(t, 55, full.Daily.Realized)
	assert.Len(t, dashboard.AllSites(full.Regions), 12)

	rec = h.do(t, pres, http.MethodGet, "/api/dashboard", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	centre := decodeData(t, rec)
	require.Len(t, centre.Regions, 1)
	assert.Equal(t, "CENTRE", centre.Regions[0].Name)
	assert.Equal(t, 20, centre.Daily.Realized)

	rec = h.do(t, agent, http.MethodGet, "/api/dashboard", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	own := decodeData(t, rec)
	sites := dashboard.AllSites(own.Regions)
	require.Len(t, sites, 1)
	assert.Equal(t, "CRTS DE TREICHVILLE", sites[0].Name)
	assert.Equal(t, 35, own.Daily.Realized)
}

func TestDashboardUnavailableBeforeFirstSync(t *testing.T) {
	h := newHarness(t)
	h.snapshots.snap = nil
	rec := h.do(t, admin, http.MethodGet, "/api/dashboard", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
}

func TestMissingAndDay(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, admin, http.MethodGet, "/api/dashboard/missing", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var missing missingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &missing))
	assert.Equal(t, "05/03/2026", missing.Date)
	assert.Len(t, missing.Sites, 10)

	rec = h.do(t, admin, http.MethodGet, "/api/dashboard/day?date=2026-03-04", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var day dashboard.DayRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &day))
	assert.Equal(t, "04/03/2026", day.Date)
	assert.Equal(t, 50, day.Stats.Realized)

	rec = h.do(t, admin, http.MethodGet, "/api/dashboard/day?date=01/01/2026", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, admin, http.MethodGet, "/api/dashboard/day?date=yesterday", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportCSV(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, agent, http.MethodGet, "/api/dashboard/export.csv", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "dashboard-05-03-2026.csv")
	body := rec.Body.String()
	assert.Contains(t, body, "CRTS DE TREICHVILLE")
	assert.NotContains(t, body, "CRTS DE BOUAKE")
}

func TestRateLimitsAreSeparate(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < exportLimit; i++ {
		rec := h.do(t, admin, http.MethodGet, "/api/dashboard/export.csv", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := h.do(t, admin, http.MethodGet, "/api/dashboard/export.csv", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = h.do(t, admin, http.MethodPost, "/api/sync", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, admin, http.MethodPost, "/api/records",
		`{"date":"06/03/2026","site":"1","fixed":1}`,
		map[string]string{IdempotencyHeader: "k-limit"})
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	for i := 1; i < syncLimit; i++ {
		rec = h.do(t, admin, http.MethodPost, "/api/sync", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec = h.do(t, admin, http.MethodPost, "/api/sync", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSyncRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, pres, http.MethodPost, "/api/sync", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, h.snapshots.forced)
}

func TestSyncOutcomes(t *testing.T) {
	h := newHarness(t)
	h.snapshots.outcome = syncer.Outcome{Version: 8, Report: ingest.Report{Accepted: 3, LatestDate: "05/03/2026"}}

	rec := h.do(t, admin, http.MethodPost, "/api/sync", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []bool{true}, h.snapshots.forced)
	var outcome syncer.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.EqualValues(t, 8, outcome.Version)
	require.Len(t, h.audit.entries, 1)
	assert.Equal(t, "dashboard.sync", h.audit.entries[0].Action)
	assert.EqualValues(t, 1, h.audit.entries[0].ActorID)

	h.snapshots.syncErr = &source.StatusError{StatusCode: http.StatusInternalServerError}
	rec = h.do(t, admin, http.MethodPost, "/api/sync", "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	h.snapshots.syncErr = ingest.ErrStructure
	rec = h.do(t, admin, http.MethodPost, "/api/sync", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	h.snapshots.syncErr = errors.New("boom")
	rec = h.do(t, admin, http.MethodPost, "/api/sync", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSyncStatus(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, agent, http.MethodGet, "/api/sync/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status syncer.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.EqualValues(t, 3, status.Version)
}

func TestSubmitRecord(t *testing.T) {
	h := newHarness(t)
	headers := map[string]string{IdempotencyHeader: "k-1"}
	body := `{"date":"2026-03-06","site":"treichville","fixed":12,"mobile":3}`

	rec := h.do(t, agent, http.MethodPost, "/api/records", body, headers)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, h.queue.payloads, 1)
	p := h.queue.payloads[0]
	assert.Equal(t, "k-1", p.IdempotencyKey)
	assert.EqualValues(t, 3, p.ActorID)
	assert.Equal(t, source.Record{
		Type:        source.RecordType,
		Date:        "06/03/2026",
		Code:        "1",
		Site:        "CRTS DE TREICHVILLE",
		Fixed:       12,
		Mobile:      3,
		Total:       15,
		SubmittedBy: "agent@hemodash.test",
	}, p.Record)
	require.Len(t, h.audit.entries, 1)
	assert.Equal(t, "records.submit", h.audit.entries[0].Action)

	rec = h.do(t, agent, http.MethodPost, "/api/records", body, headers)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, h.queue.payloads, 1)
}

func TestSubmitRecordRejections(t *testing.T) {
	h := newHarness(t)
	key := map[string]string{IdempotencyHeader: "k-2"}

	cases := []struct {
		name    string
		user    *rbac.User
		body    string
		headers map[string]string
		status  int
	}{
		{"missing key", agent, `{"date":"06/03/2026","site":"1","fixed":1}`, nil, http.StatusBadRequest},
		{"bad date", agent, `{"date":"31/02/2026","site":"1","fixed":1}`, key, http.StatusBadRequest},
		{"unknown site", agent, `{"date":"06/03/2026","site":"nowhere","fixed":1}`, key, http.StatusBadRequest},
		{"negative", agent, `{"date":"06/03/2026","site":"1","fixed":-1}`, key, http.StatusBadRequest},
		{"other site", agent, `{"date":"06/03/2026","site":"5","fixed":1}`, key, http.StatusForbidden},
		{"other region", pres, `{"date":"06/03/2026","site":"1","fixed":1}`, key, http.StatusForbidden},
		{"unknown field", admin, `{"date":"06/03/2026","site":"1","fixed":1,"extra":true}`, key, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.do(t, tc.user, http.MethodPost, "/api/records", tc.body, tc.headers)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, h.queue.payloads)
	assert.Empty(t, h.idem.seen)
}

func TestSubmitRecordEnqueueFailureReleasesKey(t *testing.T) {
	h := newHarness(t)
	h.queue.err = errors.New("redis down")
	rec := h.do(t, pres, http.MethodPost, "/api/records",
		`{"date":"06/03/2026","site":"bouake","fixed":4,"mobile":1,"total":5}`,
		map[string]string{IdempotencyHeader: "k-3"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, []string{"k-3"}, h.idem.deleted)
	assert.Empty(t, h.audit.entries)
}

func TestSubmitRecordWithoutQueue(t *testing.T) {
	reg, err := registry.Default()
	require.NoError(t, err)
	handler := NewHandler(Config{Snapshots: &stubSnapshots{}, Registry: reg})
	req := httptest.NewRequest(http.MethodPost, "/api/records", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.handleRecord(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestInScope(t *testing.T) {
	site := registry.Site{Code: "5", Name: "CRTS DE BOUAKE", Region: "CENTRE"}
	assert.True(t, inScope(admin, site))
	assert.True(t, inScope(pres, site))
	assert.True(t, inScope(&rbac.User{Role: rbac.RolePres, Region: "national"}, site))
	assert.False(t, inScope(&rbac.User{Role: rbac.RolePres}, site))
	assert.False(t, inScope(agent, site))
	assert.False(t, inScope(&rbac.User{Role: rbac.RoleAgent}, site))
	assert.False(t, inScope(nil, site))
}
