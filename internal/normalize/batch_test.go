package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamcal/internal/model"
)

func TestBatch_DropsBadRecordsKeepsSiblings(t *testing.T) {
	sources := []model.SourceEvent{
		personal("ok-1", "2026-10-19T09:00:00", "2026-10-19T10:00:00"),
		personal("bad", "not-a-date", "2026-10-19T10:00:00"),
		personal("ok-2", "2026-10-19T11:00:00", "2026-10-19T12:00:00"),
	}

	res := Batch(sources, Options{Now: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)})

	require.Len(t, res.Events, 2)
	assert.Equal(t, 1, res.Dropped)
	assert.Contains(t, res.Events[0].ID, "ok-1")
	assert.Contains(t, res.Events[1].ID, "ok-2")
}

func TestBatch_VisibilityAndOverrides(t *testing.T) {
	bob := personal("b1", "2026-10-19T09:00:00", "2026-10-19T10:00:00")
	bob.OwnerEmail = "bob@example.com"
	holiday := model.SourceEvent{
		ID: "h", Subject: "國慶日", Kind: model.KindHoliday, IsAllDay: true,
		Start: model.DateTime{Value: "2026-10-10", TimeZone: "Asia/Taipei"},
		End:   model.DateTime{Value: "2026-10-11", TimeZone: "Asia/Taipei"},
	}
	oncall := model.SourceEvent{
		ID: "oncall-2026-10-0-alice@example.com", Subject: "值班｜Alice", Kind: model.KindOnCall, IsAllDay: true,
		OwnerEmail: "alice@example.com",
		Start:      model.DateTime{Value: "2026-10-19", TimeZone: "Asia/Taipei"},
		End:        model.DateTime{Value: "2026-10-20", TimeZone: "Asia/Taipei"},
	}
	sources := []model.SourceEvent{personal("a1", "2026-10-19T09:00:00", "2026-10-19T10:00:00"), bob, holiday, oncall}

	opts := Options{
		Owners:         []model.Owner{{Email: "alice@example.com", Color: "#e68619"}, {Email: "bob@example.com", Color: "#0b6a0b"}},
		Selected:       map[string]bool{"alice@example.com": true},
		ColorOverrides: map[string]string{"alice@example.com": "#8764b8"},
		ShowHolidays:   false,
		ShowOnCall:     true,
		Now:            time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	}
	res := Batch(sources, opts)

	require.Len(t, res.Events, 2)
	assert.Equal(t, "#8764b8", res.Events[0].Colors.Background)
	assert.IsType(t, model.OnCall{}, res.Events[1].Category)
	// On-call falls back to the person's palette color.
	assert.Equal(t, "#e68619", res.Events[1].Colors.Background)

	opts.ShowHolidays = true
	opts.Selected = nil
	res = Batch(sources, opts)
	assert.Len(t, res.Events, 4)
}
