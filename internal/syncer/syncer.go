// Package syncer runs the fetch, ingest and swap cycle that keeps the
// dashboard current, and shares the resulting snapshot between processes.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hemodash/hemodash/internal/ingest"
	jobmetrics "github.com/hemodash/hemodash/internal/jobs"
	"github.com/hemodash/hemodash/internal/shared"
)

// JobName labels sync runs in job metrics.
const JobName = "dashboard_sync"

// ErrNoSnapshot is returned by Current before the first successful sync.
var ErrNoSnapshot = errors.New("syncer: no dashboard loaded yet")

// Fetcher returns the raw export text.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// Ingester builds dashboard data from raw text.
type Ingester interface {
	Ingest(rawText, previousRawText string, force bool) (ingest.Result, error)
}

// Locker serialises sync cycles across processes.
type Locker interface {
	TryAcquire(ctx context.Context) (func(context.Context) error, error)
}

// Outcome describes one Sync call.
type Outcome struct {
	Skipped   bool          `json:"skipped"`
	Unchanged bool          `json:"unchanged"`
	Version   int64         `json:"version"`
	SyncedAt  time.Time     `json:"syncedAt"`
	Report    ingest.Report `json:"report"`
}

// Status summarises recent sync activity.
type Status struct {
	Running     bool          `json:"running"`
	LastAttempt time.Time     `json:"lastAttempt"`
	LastSuccess time.Time     `json:"lastSuccess"`
	LastError   string        `json:"lastError,omitempty"`
	Version     int64         `json:"version"`
	Report      ingest.Report `json:"report"`
}

// Config wires a Syncer.
type Config struct {
	Fetcher  Fetcher
	Pipeline Ingester
	Store    Store
	Lock     Locker
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Clock    func() time.Time
}

// Syncer owns the known-good snapshot of one process.
type Syncer struct {
	fetcher  Fetcher
	pipeline Ingester
	store    Store
	lock     Locker
	log      *slog.Logger
	metrics  *jobmetrics.Metrics
	clock    func() time.Time

	running atomic.Bool
	loads   singleflight.Group

	mu      sync.RWMutex
	current *Snapshot
	status  Status
}

// New builds a Syncer. Store and Lock are optional.
func New(cfg Config) (*Syncer, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("syncer: fetcher required")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("syncer: pipeline required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Syncer{
		fetcher:  cfg.Fetcher,
		pipeline: cfg.Pipeline,
		store:    cfg.Store,
		lock:     cfg.Lock,
		log:      logger.With(slog.String("component", "syncer")),
		metrics:  cfg.Metrics,
		clock:    clock,
	}, nil
}

// Sync runs one cycle. A call made while another cycle runs, here or in
// another process, returns a skipped Outcome at once. On any error the
// current snapshot is kept.
func (s *Syncer) Sync(ctx context.Context, force bool) (Outcome, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Outcome{Skipped: true}, nil
	}
	defer s.running.Store(false)

	if s.lock != nil {
		release, err := s.lock.TryAcquire(ctx)
		if errors.Is(err, shared.ErrLockHeld) {
			s.log.Info("sync already running elsewhere")
			return Outcome{Skipped: true}, nil
		}
		if err != nil {
			return Outcome{}, s.fail(err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("release sync lock", slog.Any("error", err))
			}
		}()
	}

	tracker := s.metrics.Track(JobName)
	outcome, err := s.cycle(ctx, force)
	return outcome, tracker.End(err)
}

func (s *Syncer) cycle(ctx context.Context, force bool) (Outcome, error) {
	started := s.clock()
	s.mu.Lock()
	s.status.LastAttempt = started
	s.mu.Unlock()

	var previousRaw string
	var baseVersion int64
	if snap, err := s.Current(ctx); err == nil {
		previousRaw = snap.Raw
		baseVersion = snap.Version
	}

	raw, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return Outcome{}, s.fail(err)
	}

	res, err := s.pipeline.Ingest(raw, previousRaw, force)
	if err != nil {
		s.recordSkips(res.Report)
		return Outcome{Report: res.Report}, s.fail(err)
	}
	if res.Unchanged {
		s.mu.Lock()
		s.status.LastSuccess = started
		s.status.LastError = ""
		ver := s.status.Version
		s.mu.Unlock()
		s.log.Debug("source unchanged")
		return Outcome{Unchanged: true, Version: ver}, nil
	}
	s.recordSkips(res.Report)

	snap := &Snapshot{Raw: raw, Data: res.Data, Report: res.Report, SyncedAt: started}
	if s.store != nil {
		ver, err := s.store.Save(ctx, snap)
		if err != nil {
			// Keep the new data local at the version it was built on so
			// Current does not reload the older stored snapshot over it.
			s.log.Warn("persist snapshot", slog.Any("error", err))
			ver = s.unsavedVersion(ctx, baseVersion)
		}
		snap.Version = ver
	}
	s.swap(snap)
	s.metrics.MarkSynced(started)

	s.log.Info("dashboard synced",
		slog.String("date", res.Report.LatestDate),
		slog.Int("rows", res.Report.Rows),
		slog.Int("accepted", res.Report.Accepted),
		slog.Int("skipped_date", res.Report.SkippedDate),
		slog.Int("skipped_site", res.Report.SkippedSite),
		slog.Int64("version", snap.Version),
	)
	return Outcome{Version: snap.Version, SyncedAt: started, Report: res.Report}, nil
}

func (s *Syncer) unsavedVersion(ctx context.Context, base int64) int64 {
	stored, err := s.store.Version(ctx)
	if err != nil || stored < base {
		return base
	}
	return stored
}

// Current returns the known-good snapshot, reloading it from the store when
// another process has saved a newer version.
func (s *Syncer) Current(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	snap := s.current
	s.mu.RUnlock()

	if s.store != nil {
		ver, err := s.store.Version(ctx)
		if err != nil {
			s.log.Warn("read snapshot version", slog.Any("error", err))
		} else if snap == nil || ver > snap.Version {
			if loaded, err := s.reload(ctx); err != nil {
				s.log.Warn("reload snapshot", slog.Any("error", err))
			} else if loaded != nil {
				snap = loaded
			}
		}
	}
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

func (s *Syncer) reload(ctx context.Context) (*Snapshot, error) {
	ch := s.loads.DoChan("snapshot", func() (interface{}, error) {
		snap, err := s.store.Load(context.WithoutCancel(ctx))
		if err != nil || snap == nil {
			return nil, err
		}
		s.swap(snap)
		return s.snapshot(), nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil || res.Val == nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

// swap installs snap unless a newer version is already held.
func (s *Syncer) swap(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && snap.Version != 0 && snap.Version < s.current.Version {
		return
	}
	s.current = snap
	s.status.LastSuccess = snap.SyncedAt
	s.status.LastError = ""
	s.status.Version = snap.Version
	s.status.Report = snap.Report
}

func (s *Syncer) snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Status reports recent sync activity.
func (s *Syncer) Status() Status {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()
	st.Running = s.running.Load()
	return st
}

// Run syncs immediately and then every interval until ctx ends.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("syncer: interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sync(ctx, false); err != nil && ctx.Err() == nil {
			s.log.Error("periodic sync", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Watch reloads the snapshot whenever the store announces a new version.
func (s *Syncer) Watch(ctx context.Context, store *RedisStore) error {
	return store.Subscribe(ctx, func(ver int64) {
		if cur := s.snapshot(); cur != nil && cur.Version >= ver {
			return
		}
		if _, err := s.reload(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("reload announced snapshot", slog.Int64("version", ver), slog.Any("error", err))
		}
	})
}

func (s *Syncer) fail(err error) error {
	s.mu.Lock()
	s.status.LastError = err.Error()
	s.mu.Unlock()
	s.log.Error("sync failed", slog.Any("error", err))
	return err
}

func (s *Syncer) recordSkips(r ingest.Report) {
	s.metrics.AddSkippedRows(jobmetrics.ReasonDate, r.SkippedDate)
	s.metrics.AddSkippedRows(jobmetrics.ReasonSite, r.SkippedSite)
	if r.SkippedDate > 0 || r.SkippedSite > 0 {
		s.log.Info("rows skipped during ingestion",
			slog.Int("skipped_date", r.SkippedDate),
			slog.Int("skipped_site", r.SkippedSite),
		)
	}
}
