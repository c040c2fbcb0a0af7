package refresh

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamcal/internal/config"
	"teamcal/internal/ics"
	"teamcal/internal/model"
)

type fakeFetcher struct {
	bodies map[string]string
	gate   chan struct{}
	calls  int
}

func (f *fakeFetcher) FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, error) {
	f.calls++
	if f.gate != nil {
		<-f.gate
	}
	var out []ics.FetchResult
	var errs []error
	for _, src := range sources {
		body, ok := f.bodies[src.Owner]
		if !ok {
			errs = append(errs, errors.New(src.Owner+": unreachable"))
			continue
		}
		out = append(out, ics.FetchResult{Source: src, Body: []byte(strings.ReplaceAll(body, "\n", "\r\n"))})
	}
	return out, errors.Join(errs...)
}

const aliceFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//teamcal//test//EN
BEGIN:VEVENT
UID:review
SUMMARY:Design review
DTSTART;TZID=Asia/Taipei:20261020T100000
DTEND;TZID=Asia/Taipei:20261020T110000
END:VEVENT
BEGIN:VEVENT
UID:old
SUMMARY:Way back
DTSTART;TZID=Asia/Taipei:20250101T100000
DTEND;TZID=Asia/Taipei:20250101T110000
END:VEVENT
END:VCALENDAR
`

var now = time.Date(2026, 10, 19, 2, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.SyncDaysBack, cfg.SyncDaysAhead = 10, 30
	cfg.Owners = []config.OwnerConfig{
		{Email: "alice@example.com", Name: "Alice", ICSURL: "https://example.com/alice.ics"},
		{Email: "bob@example.com", Name: "Bob", ICSURL: "https://example.com/bob.ics"},
		{Email: "carol@example.com", Name: "Carol"},
	}
	rota := filepath.Join(t.TempDir(), "oncall.json")
	require.NoError(t, os.WriteFile(rota, []byte(`{"2026-10":[{"userEmail":"carol@example.com","start":"2026-10-19","end":"2026-10-23"}]}`), 0o600))
	cfg.OnCallPath = rota
	cfg.Normalize()
	return cfg
}

func TestSync_PublishesAllSources(t *testing.T) {
	f := &fakeFetcher{bodies: map[string]string{"alice@example.com": aliceFeed}}
	s := New(testConfig(t), f, WithClock(func() time.Time { return now }))

	err := s.Sync(context.Background())
	require.Error(t, err, "bob's feed is unreachable")
	assert.Contains(t, err.Error(), "bob@example.com")

	snap := s.Snapshot()
	kinds := map[model.Kind][]string{}
	for _, ev := range snap.Events {
		kinds[ev.Kind] = append(kinds[ev.Kind], ev.ID)
	}
	assert.Equal(t, []string{"review"}, kinds[model.KindPersonal])
	assert.Equal(t, []string{"oncall-2026-10-0-carol@example.com"}, kinds[model.KindOnCall])
	assert.Equal(t, []string{"holiday-2026-10-10"}, kinds[model.KindHoliday])
	assert.Len(t, snap.Owners, 3)

	st := s.Status()
	require.NotNil(t, st.LastSync)
	assert.Equal(t, now, *st.LastSync)
	assert.False(t, st.IsSyncing)
	assert.Equal(t, 3, st.TotalEvents)
	assert.Equal(t, 3, st.TotalUsers)
	assert.Contains(t, st.Error, "bob@example.com")
}

func TestSync_RejectsOverlap(t *testing.T) {
	f := &fakeFetcher{bodies: map[string]string{"alice@example.com": aliceFeed, "bob@example.com": aliceFeed}, gate: make(chan struct{})}
	s := New(testConfig(t), f, WithClock(func() time.Time { return now }))

	done := make(chan error, 1)
	go func() { done <- s.Sync(context.Background()) }()

	require.Eventually(t, func() bool { return s.Status().IsSyncing }, time.Second, time.Millisecond)
	assert.ErrorIs(t, s.Sync(context.Background()), ErrSyncInProgress)

	close(f.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.calls)
	assert.False(t, s.Status().IsSyncing)
}

func TestEvents_FiltersByUsersAndRange(t *testing.T) {
	f := &fakeFetcher{bodies: map[string]string{"alice@example.com": aliceFeed, "bob@example.com": aliceFeed}}
	s := New(testConfig(t), f, WithClock(func() time.Time { return now }))
	require.NoError(t, s.Sync(context.Background()))

	loc := s.cfg.Location()
	from := time.Date(2026, 10, 19, 0, 0, 0, 0, loc)
	to := time.Date(2026, 10, 26, 0, 0, 0, 0, loc)

	all := s.Events(from, to, nil)
	assert.Len(t, all, 3, "two personal reviews and the on-call week")

	onlyBob := s.Events(from, to, []string{"BOB@example.com"})
	require.Len(t, onlyBob, 2)
	for _, ev := range onlyBob {
		if ev.Kind == model.KindPersonal {
			assert.Equal(t, "bob@example.com", ev.OwnerEmail)
		}
	}
}

func TestStartStop(t *testing.T) {
	s := New(testConfig(t), &fakeFetcher{}, WithClock(func() time.Time { return now }))
	require.NoError(t, s.Start(context.Background()))
	st := s.Status()
	require.NotNil(t, st.NextSync)
	assert.True(t, st.NextSync.After(now))
	s.Stop()
	s.Stop()
}
