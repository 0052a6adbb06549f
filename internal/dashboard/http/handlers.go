package dashboardhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/hemodash/hemodash/internal/dashboard"
	"github.com/hemodash/hemodash/internal/ingest"
	"github.com/hemodash/hemodash/internal/platform/httpx"
	"github.com/hemodash/hemodash/internal/rbac"
	"github.com/hemodash/hemodash/internal/registry"
	"github.com/hemodash/hemodash/internal/shared"
	"github.com/hemodash/hemodash/internal/sheet"
	"github.com/hemodash/hemodash/internal/source"
	"github.com/hemodash/hemodash/internal/syncer"
	"github.com/hemodash/hemodash/jobs"
)

// IdempotencyHeader carries the client-chosen key of a record submission.
const IdempotencyHeader = "Idempotency-Key"

const recordsModule = "records"

// Snapshots exposes the sync cycle to the handlers.
type Snapshots interface {
	Current(ctx context.Context) (*syncer.Snapshot, error)
	Sync(ctx context.Context, force bool) (syncer.Outcome, error)
	Status() syncer.Status
}

// RecordQueue accepts records for asynchronous submission.
type RecordQueue interface {
	EnqueueRecord(ctx context.Context, payload jobs.RecordPayload) (*asynq.TaskInfo, error)
}

// IdempotencyStore rejects replayed submissions.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditRecorder persists operator actions.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config wires the dashboard handler. Queue, Idempotency and Audit are
// optional; without a queue record submission answers 503.
type Config struct {
	Logger      *slog.Logger
	Snapshots   Snapshots
	Registry    *registry.Registry
	Queue       RecordQueue
	Idempotency IdempotencyStore
	Audit       AuditRecorder
}

// Handler serves the JSON dashboard API.
type Handler struct {
	logger    *slog.Logger
	snapshots Snapshots
	registry  *registry.Registry
	queue     RecordQueue
	idem      IdempotencyStore
	audit     AuditRecorder
	validator *validator.Validate
	csvPool   sync.Pool
	now       func() time.Time
}

// NewHandler constructs the dashboard handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:    logger,
		snapshots: cfg.Snapshots,
		registry:  cfg.Registry,
		queue:     cfg.Queue,
		idem:      cfg.Idempotency,
		audit:     cfg.Audit,
		validator: validator.New(),
		now:       time.Now,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// scoped loads the current snapshot restricted to the request's user.
func (h *Handler) scoped(r *http.Request) (*dashboard.Data, *syncer.Snapshot, error) {
	snap, err := h.snapshots.Current(r.Context())
	if errors.Is(err, syncer.ErrNoSnapshot) {
		return nil, nil, fmt.Errorf("%w: dashboard not loaded yet", httpx.ErrUnavailable)
	}
	if err != nil {
		return nil, nil, err
	}
	return rbac.Scope(snap.Data, rbac.UserFromContext(r.Context())), snap, nil
}

func setSnapshotHeaders(w http.ResponseWriter, snap *syncer.Snapshot) {
	w.Header().Set("Cache-Control", "private, no-cache")
	w.Header().Set("X-Dashboard-Version", fmt.Sprint(snap.Version))
	if !snap.SyncedAt.IsZero() {
		w.Header().Set("Last-Modified", snap.SyncedAt.UTC().Format(http.TimeFormat))
	}
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data, snap, err := h.scoped(r)
	if err != nil {
		h.respond(w, "load dashboard", err)
		return
	}
	setSnapshotHeaders(w, snap)
	httpx.JSON(w, http.StatusOK, data)
}

type missingResponse struct {
	Date  string                 `json:"date"`
	Sites []dashboard.SiteRecord `json:"sites"`
}

func (h *Handler) handleMissing(w http.ResponseWriter, r *http.Request) {
	data, snap, err := h.scoped(r)
	if err != nil {
		h.respond(w, "load dashboard", err)
		return
	}
	setSnapshotHeaders(w, snap)
	sites := data.MissingReporters()
	if sites == nil {
		sites = []dashboard.SiteRecord{}
	}
	httpx.JSON(w, http.StatusOK, missingResponse{Date: data.Date, Sites: sites})
}

func (h *Handler) handleDay(w http.ResponseWriter, r *http.Request) {
	date := sheet.NormalizeDate(r.URL.Query().Get("date"))
	if _, ok := sheet.ParseDate(date); !ok {
		httpx.RespondError(w, fmt.Errorf("%w: date must be DD/MM/YYYY", httpx.ErrValidation))
		return
	}
	data, snap, err := h.scoped(r)
	if err != nil {
		h.respond(w, "load dashboard", err)
		return
	}
	day, ok := data.Day(date)
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: no records on %s", httpx.ErrNotFound, date))
		return
	}
	setSnapshotHeaders(w, snap)
	httpx.JSON(w, http.StatusOK, day)
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	data, _, err := h.scoped(r)
	if err != nil {
		h.respond(w, "load dashboard", err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := dashboard.WriteSitesCSV(buf, data); err != nil {
		h.respond(w, "write sites csv", err)
		return
	}
	buf.WriteString("\n")
	if err := dashboard.WriteHistoryCSV(buf, data); err != nil {
		h.respond(w, "write history csv", err)
		return
	}

	name := "dashboard-" + strings.ReplaceAll(data.Date, "/", "-") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.snapshots.Status())
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.snapshots.Sync(r.Context(), true)
	switch {
	case errors.Is(err, source.ErrTransport):
		err = fmt.Errorf("%w: %v", httpx.ErrBadGateway, err)
	case errors.Is(err, ingest.ErrStructure):
		err = fmt.Errorf("%w: %v", httpx.ErrUnprocessable, err)
	}
	h.recordAudit(r, "dashboard.sync", "dashboard", outcome.Report.LatestDate, map[string]any{
		"skipped":  outcome.Skipped,
		"version":  outcome.Version,
		"accepted": outcome.Report.Accepted,
		"error":    errString(err),
	})
	if err != nil {
		h.respond(w, "forced sync", err)
		return
	}
	httpx.JSON(w, http.StatusOK, outcome)
}

type recordRequest struct {
	Date   string `json:"date" validate:"required"`
	Site   string `json:"site" validate:"required"`
	Fixed  int    `json:"fixed" validate:"gte=0"`
	Mobile int    `json:"mobile" validate:"gte=0"`
	Total  int    `json:"total" validate:"gte=0"`
}

type recordAccepted struct {
	Status string        `json:"status"`
	Record source.Record `json:"record"`
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		httpx.RespondError(w, fmt.Errorf("%w: record submission disabled", httpx.ErrUnavailable))
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key == "" {
		httpx.RespondError(w, fmt.Errorf("%w: %s header required", httpx.ErrValidation, IdempotencyHeader))
		return
	}

	var req recordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	rec, err := h.buildRecord(rbac.UserFromContext(r.Context()), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	if h.idem != nil {
		if err := h.idem.CheckAndInsert(r.Context(), key, recordsModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.RespondError(w, fmt.Errorf("%w: record already submitted", httpx.ErrDuplicate))
				return
			}
			h.respond(w, "idempotency check", err)
			return
		}
	}

	user := rbac.UserFromContext(r.Context())
	payload := jobs.RecordPayload{Record: rec, IdempotencyKey: key, AcceptedAt: h.now().UTC()}
	if user != nil {
		payload.ActorID = user.ID
	}
	if _, err := h.queue.EnqueueRecord(r.Context(), payload); err != nil {
		if h.idem != nil {
			if delErr := h.idem.Delete(context.WithoutCancel(r.Context()), key); delErr != nil {
				h.logger.Warn("rollback idempotency key", slog.Any("error", delErr))
			}
		}
		h.respond(w, "enqueue record", err)
		return
	}

	h.recordAudit(r, "records.submit", "site", rec.Code, map[string]any{
		"date":  rec.Date,
		"total": rec.Total,
		"key":   key,
	})
	httpx.JSON(w, http.StatusAccepted, recordAccepted{Status: "queued", Record: rec})
}

// buildRecord resolves the site and checks it lies inside the user's scope.
func (h *Handler) buildRecord(user *rbac.User, req recordRequest) (source.Record, error) {
	date := sheet.NormalizeDate(req.Date)
	if _, ok := sheet.ParseDate(date); !ok {
		return source.Record{}, fmt.Errorf("%w: date must be DD/MM/YYYY", httpx.ErrValidation)
	}
	site, ok := h.registry.Resolve(req.Site)
	if !ok {
		return source.Record{}, fmt.Errorf("%w: unknown site %q", httpx.ErrValidation, req.Site)
	}
	if !inScope(user, site) {
		return source.Record{}, fmt.Errorf("%w: site %s is outside your scope", httpx.ErrForbidden, site.Name)
	}
	total := req.Total
	if total == 0 {
		total = req.Fixed + req.Mobile
	}
	rec := source.Record{
		Type:   source.RecordType,
		Date:   date,
		Code:   site.Code,
		Site:   site.Name,
		Fixed:  req.Fixed,
		Mobile: req.Mobile,
		Total:  total,
	}
	if user != nil {
		rec.SubmittedBy = user.Email
	}
	return rec, nil
}

// inScope reports whether user may submit for site. Unlike the read scope,
// a missing region or site assignment grants nothing.
func inScope(user *rbac.User, site registry.Site) bool {
	if user == nil {
		return false
	}
	switch {
	case user.Role.IsAdmin():
		return true
	case user.Role == rbac.RolePres:
		region := strings.TrimSpace(user.Region)
		return strings.EqualFold(region, rbac.AllRegions) || (region != "" && strings.EqualFold(region, site.Region))
	case user.Role == rbac.RoleAgent:
		return strings.EqualFold(strings.TrimSpace(user.Site), site.Name)
	}
	return false
}

func (h *Handler) recordAudit(r *http.Request, action, entity, entityID string, meta map[string]any) {
	if h.audit == nil {
		return
	}
	if entityID == "" {
		entityID = "-"
	}
	entry := shared.AuditLog{Action: action, Entity: entity, EntityID: entityID, Meta: meta, At: h.now()}
	if user := rbac.UserFromContext(r.Context()); user != nil {
		entry.ActorID = user.ID
	}
	if err := h.audit.Record(context.WithoutCancel(r.Context()), entry); err != nil {
		h.logger.Warn("audit log", slog.String("action", action), slog.Any("error", err))
	}
}

func (h *Handler) respond(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, httpx.ErrUnavailable), errors.Is(err, httpx.ErrValidation),
		errors.Is(err, httpx.ErrDuplicate), errors.Is(err, httpx.ErrForbidden):
		h.logger.Info(op, slog.Any("error", err))
	default:
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
