package holiday

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamcal/internal/model"
)

func TestEvents_WindowFromFallback(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Taipei")
	require.NoError(t, err)

	from := time.Date(2026, 10, 1, 0, 0, 0, 0, loc)
	to := time.Date(2026, 11, 1, 0, 0, 0, 0, loc)
	events := Events(Load(""), from, to, loc)

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "holiday-2026-10-10", ev.ID)
	assert.Equal(t, "國慶日", ev.Subject)
	assert.Equal(t, "2026-10-11T00:00:00", ev.End.Value)
	assert.Equal(t, model.KindHoliday, ev.Kind)
	assert.True(t, ev.IsAllDay)
}

func TestFallbackDatesParse(t *testing.T) {
	for _, h := range Fallback {
		_, err := time.Parse(time.DateOnly, h.Date)
		assert.NoError(t, err, h.Date)
	}
	assert.Len(t, Events(Fallback, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC), time.UTC), len(Fallback))
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "holidays.json")
	require.NoError(t, os.WriteFile(good, []byte(`[{"subject":"Team day","date":"2026-10-23"},{"subject":"bad","date":"tomorrow"}]`), 0o600))

	list := Load(good)
	require.Len(t, list, 2)
	events := Events(list, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), time.UTC)
	require.Len(t, events, 1)
	assert.Equal(t, "Team day", events[0].Subject)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"not":"a list"}`), 0o600))
	assert.Equal(t, Fallback, Load(bad))
	assert.Equal(t, Fallback, Load(filepath.Join(dir, "missing.json")))
}
