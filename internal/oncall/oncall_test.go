package oncall

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamcal/internal/model"
)

var taipei, _ = time.LoadLocation("Asia/Taipei")

func writeRota(t *testing.T, path, body string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestBuild(t *testing.T) {
	rows := []Assignment{
		{UserEmail: "alice@example.com", Start: "2026-10-05", End: "2026-10-09"},
		{UserEmail: "", Start: "2026-10-12", End: "2026-10-16"},
		{UserEmail: "bob@example.com", Start: "2026-10-12"},
		{UserEmail: "bob@example.com", Start: "2026/10/12", End: "2026-10-16"},
		{UserEmail: "bob@example.com", Start: "2026-10-16", End: "2026-10-12"},
		{UserEmail: "carol@example.com", Start: "2026-10-19", End: "2026-10-19"},
	}
	names := map[string]string{"alice@example.com": "Alice"}

	events := Build("2026-10", rows, taipei, names)
	require.Len(t, events, 2)

	a := events[0]
	assert.Equal(t, "oncall-2026-10-0-alice@example.com", a.ID)
	assert.Equal(t, "值班｜Alice", a.Subject)
	assert.Equal(t, model.DateTime{Value: "2026-10-05T00:00:00", TimeZone: "Asia/Taipei"}, a.Start)
	assert.Equal(t, "2026-10-10T00:00:00", a.End.Value, "end is the day after the last on-call date")
	assert.True(t, a.IsAllDay)
	assert.Equal(t, model.KindOnCall, a.Kind)

	c := events[1]
	assert.Equal(t, "oncall-2026-10-5-carol@example.com", c.ID)
	assert.Equal(t, "值班｜carol", c.Subject)
	assert.Equal(t, "2026-10-20T00:00:00", c.End.Value)
}

func TestStore_ReloadsOnMtimeChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oncall.json")
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	writeRota(t, path, `{"2026-10":[{"userEmail":"a@x.com","start":"2026-10-01","end":"2026-10-02"}]}`, base)

	s := NewStore(path)
	assert.Len(t, s.Events(taipei, nil), 1)

	// Same mtime: cached copy wins even though the content changed.
	writeRota(t, path, `{}`, base)
	assert.Len(t, s.Events(taipei, nil), 1)

	writeRota(t, path, `{"2026-11":[{"userEmail":"b@x.com","start":"2026-11-01","end":"2026-11-02"}],
		"2026-10":[{"userEmail":"a@x.com","start":"2026-10-01","end":"2026-10-02"}]}`, base.Add(time.Minute))
	events := s.Events(taipei, nil)
	require.Len(t, events, 2)
	assert.Equal(t, "a@x.com", events[0].OwnerEmail, "months are emitted in order")

	writeRota(t, path, `[1,2,3]`, base.Add(2*time.Minute))
	assert.Empty(t, s.Events(taipei, nil))

	require.NoError(t, os.Remove(path))
	assert.Empty(t, s.Events(taipei, nil))
}

func TestStore_EmptyPath(t *testing.T) {
	assert.Empty(t, NewStore("").Events(taipei, nil))
}
