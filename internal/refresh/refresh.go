// Package refresh keeps the in-memory snapshot of every calendar source up
// to date, either on demand or on a cron schedule.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"teamcal/internal/config"
	"teamcal/internal/holiday"
	"teamcal/internal/ics"
	appLog "teamcal/internal/log"
	"teamcal/internal/metrics"
	"teamcal/internal/model"
	"teamcal/internal/normalize"
	"teamcal/internal/oncall"
)

// ErrSyncInProgress is returned when a sync is requested while one runs.
var ErrSyncInProgress = errors.New("refresh: sync already in progress")

// Fetcher retrieves ICS feeds. *ics.Fetcher satisfies it.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, error)
}

// Snapshot is the result of the last successful sync.
type Snapshot struct {
	Owners   []model.Owner
	Events   []model.SourceEvent
	From     time.Time
	To       time.Time
	SyncedAt time.Time
}

// Status reports sync progress for the API.
type Status struct {
	LastSync    *time.Time `json:"lastSync"`
	NextSync    *time.Time `json:"nextSync"`
	IsSyncing   bool       `json:"isSyncing"`
	TotalUsers  int        `json:"totalUsers"`
	TotalEvents int        `json:"totalEvents"`
	Error       string     `json:"error,omitempty"`
}

// Service owns the snapshot. Readers never block a running sync and always
// see a complete snapshot.
type Service struct {
	cfg      *config.Config
	loc      *time.Location
	fetcher  Fetcher
	oncall   *oncall.Store
	holidays []holiday.Holiday
	metrics  *metrics.Manager
	now      func() time.Time

	syncing atomic.Bool

	mu     sync.RWMutex
	snap   Snapshot
	status Status

	cron  *cron.Cron
	entry cron.EntryID
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records sync metrics on m.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds a Service for cfg.
func New(cfg *config.Config, fetcher Fetcher, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		loc:      cfg.Location(),
		fetcher:  fetcher,
		oncall:   oncall.NewStore(cfg.OnCallPath),
		holidays: holiday.Load(cfg.HolidaysPath),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snap.Owners = s.owners()
	s.status.TotalUsers = len(s.snap.Owners)
	return s
}

func (s *Service) owners() []model.Owner {
	out := make([]model.Owner, 0, len(s.cfg.Owners))
	for _, o := range s.cfg.Owners {
		out = append(out, model.Owner{Email: o.Email, DisplayName: o.Name, Color: o.Color})
	}
	return out
}

// Sync fetches every source and swaps in a new snapshot. A source that fails
// is reported in the status and the returned error but does not prevent the
// others from being published.
func (s *Service) Sync(ctx context.Context) error {
	if !s.syncing.CompareAndSwap(false, true) {
		appLog.Warn("refresh: sync already running, skipping")
		return ErrSyncInProgress
	}
	defer s.syncing.Store(false)

	started := s.now()
	s.mu.Lock()
	s.status.IsSyncing = true
	s.status.Error = ""
	s.mu.Unlock()

	from, to := s.cfg.SyncWindow(started)
	appLog.Info("refresh: sync start", "owners", len(s.cfg.Owners), "from", from.Format(time.DateOnly), "to", to.Format(time.DateOnly))

	events, errs := s.collect(ctx, from, to)

	finished := s.now()
	outcome := metrics.OutcomeOK
	var syncErr error
	if len(errs) > 0 {
		outcome = metrics.OutcomePartial
		syncErr = errors.Join(errs...)
	}
	if ctx.Err() != nil {
		outcome = metrics.OutcomeFailed
		syncErr = ctx.Err()
	}

	s.mu.Lock()
	if outcome != metrics.OutcomeFailed {
		s.snap = Snapshot{Owners: s.owners(), Events: events, From: from, To: to, SyncedAt: finished}
		s.status.LastSync = &finished
		s.status.TotalUsers = len(s.snap.Owners)
		s.status.TotalEvents = len(events)
	}
	s.status.IsSyncing = false
	if syncErr != nil {
		s.status.Error = syncErr.Error()
	}
	s.status.NextSync = s.nextRunLocked()
	s.mu.Unlock()

	s.metrics.RecordSync(outcome, finished.Sub(started), finished)
	if outcome != metrics.OutcomeFailed {
		counts := map[model.Kind]int{}
		for _, ev := range events {
			counts[ev.Kind]++
		}
		for _, k := range []model.Kind{model.KindPersonal, model.KindHoliday, model.KindOnCall} {
			s.metrics.SetEvents(k.String(), counts[k])
		}
	}

	if syncErr != nil {
		appLog.Error("refresh: sync finished with errors", syncErr, "outcome", outcome, "events", len(events))
		return syncErr
	}
	appLog.Info("refresh: sync done", "events", len(events), "took", finished.Sub(started).String())
	return nil
}

func (s *Service) collect(ctx context.Context, from, to time.Time) ([]model.SourceEvent, []error) {
	var errs []error
	var events []model.SourceEvent

	sources := make([]ics.Source, 0, len(s.cfg.Owners))
	for _, o := range s.cfg.Owners {
		if o.ICSURL != "" {
			sources = append(sources, ics.Source{Owner: o.Email, Name: o.Name, URL: o.ICSURL})
		}
	}
	if len(sources) > 0 && s.fetcher != nil {
		results, err := s.fetcher.FetchAll(ctx, sources)
		if err != nil {
			s.metrics.RecordSourceError("ics")
			errs = append(errs, err)
		}
		var parsed []ics.ParsedEvent
		for _, res := range results {
			p, err := ics.Parse(res.Source, res.Body, s.loc)
			if err != nil {
				s.metrics.RecordSourceError("ics")
				errs = append(errs, err)
				continue
			}
			parsed = append(parsed, p...)
		}
		expanded, err := ics.Expand(parsed, ics.ExpandConfig{DisplayLocation: s.loc, RangeStart: from, RangeEnd: to})
		if err != nil {
			errs = append(errs, fmt.Errorf("expand: %w", err))
		}
		events = append(events, expanded.Events...)
	}

	names := make(map[string]string, len(s.cfg.Owners))
	for _, o := range s.cfg.Owners {
		names[o.Email] = o.Name
	}
	for _, ev := range s.oncall.Events(s.loc, names) {
		if overlapsWindow(ev, from, to) {
			events = append(events, ev)
		}
	}
	events = append(events, holiday.Events(s.holidays, from, to, s.loc)...)
	return events, errs
}

func overlapsWindow(ev model.SourceEvent, from, to time.Time) bool {
	start, _, err1 := normalize.ParseDateTime(ev.Start)
	end, _, err2 := normalize.ParseDateTime(ev.End)
	if err1 != nil || err2 != nil {
		return false
	}
	return start.Before(to) && end.After(from)
}

// Snapshot returns the last published snapshot.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Status returns the current sync status.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	st.IsSyncing = s.syncing.Load()
	return st
}

// Events returns snapshot events overlapping [from, to) owned by one of
// users. Holidays and on-call rows are always included; an empty users list
// means everyone.
func (s *Service) Events(from, to time.Time, users []string) []model.SourceEvent {
	snap := s.Snapshot()
	want := make(map[string]bool, len(users))
	for _, u := range users {
		if u = strings.ToLower(strings.TrimSpace(u)); u != "" {
			want[u] = true
		}
	}
	out := make([]model.SourceEvent, 0, len(snap.Events))
	for _, ev := range snap.Events {
		if ev.Kind == model.KindPersonal && len(want) > 0 && !want[strings.ToLower(ev.OwnerEmail)] {
			continue
		}
		if overlapsWindow(ev, from, to) {
			out = append(out, ev)
		}
	}
	return out
}

// Start schedules Sync on the configured cron spec. Scheduled runs that
// overlap a running sync are skipped.
func (s *Service) Start(ctx context.Context) error {
	c := cron.New(cron.WithLocation(s.loc))
	id, err := c.AddFunc(s.cfg.RefreshCron, func() {
		if err := s.Sync(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
			appLog.Warn("refresh: scheduled sync failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("refresh: schedule %q: %w", s.cfg.RefreshCron, err)
	}
	c.Start()

	s.mu.Lock()
	s.cron, s.entry = c, id
	s.status.NextSync = s.nextRunLocked()
	s.mu.Unlock()

	appLog.Info("refresh: scheduler started", "spec", s.cfg.RefreshCron)
	return nil
}

// Stop halts the scheduler and waits for a running scheduled sync.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

func (s *Service) nextRunLocked() *time.Time {
	if s.cron == nil {
		return nil
	}
	next := s.cron.Entry(s.entry).Next
	if next.IsZero() {
		// Entry.Next is filled once the scheduler loop has run.
		sched, err := cron.ParseStandard(s.cfg.RefreshCron)
		if err != nil {
			return nil
		}
		next = sched.Next(s.now().In(s.loc))
	}
	return &next
}
