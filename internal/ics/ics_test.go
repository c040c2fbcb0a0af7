package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamcal/internal/model"
)

var taipei = mustLoad("Asia/Taipei")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func calendar(events ...string) []byte {
	body := "BEGIN:VCALENDAR\nVERSION:2.0\nPRODID:-//teamcal//test//EN\n" +
		strings.Join(events, "") + "END:VCALENDAR\n"
	return []byte(strings.ReplaceAll(body, "\n", "\r\n"))
}

const standup = `BEGIN:VEVENT
UID:standup-1
SUMMARY:Standup\, daily
DTSTART;TZID=Asia/Taipei:20261019T093000
DTEND;TZID=Asia/Taipei:20261019T094500
RRULE:FREQ=DAILY;COUNT=5
EXDATE;TZID=Asia/Taipei:20261021T093000
END:VEVENT
`

const standupMoved = `BEGIN:VEVENT
UID:standup-1
RECURRENCE-ID;TZID=Asia/Taipei:20261022T093000
SUMMARY:Standup (moved)
DTSTART;TZID=Asia/Taipei:20261022T140000
DTEND;TZID=Asia/Taipei:20261022T141500
END:VEVENT
`

const offsite = `BEGIN:VEVENT
UID:offsite
SUMMARY:Offsite
DTSTART;VALUE=DATE:20261026
DTEND;VALUE=DATE:20261028
TRANSP:TRANSPARENT
END:VEVENT
`

const utcCall = `BEGIN:VEVENT
UID:call
SUMMARY:Call
LOCATION:Room 1
DTSTART:20261020T010000Z
DTEND:20261020T020000Z
X-MICROSOFT-CDO-BUSYSTATUS:OOF
END:VEVENT
`

const noUID = `BEGIN:VEVENT
SUMMARY:Broken
DTSTART:20261020T010000Z
END:VEVENT
`

var alice = Source{Owner: "alice@example.com", Name: "Alice", URL: "https://example.com/a.ics"}

func TestParse(t *testing.T) {
	events, err := Parse(alice, calendar(standup, offsite, utcCall, noUID), taipei)
	require.NoError(t, err)
	require.Len(t, events, 3)

	s := events[0]
	assert.Equal(t, "Standup, daily", s.Summary)
	assert.Equal(t, time.Date(2026, 10, 19, 9, 30, 0, 0, taipei), s.Start)
	assert.Equal(t, "FREQ=DAILY;COUNT=5", s.RawRRule)
	require.Len(t, s.ExDates, 1)
	assert.True(t, s.ExDates[0].Equal(time.Date(2026, 10, 21, 9, 30, 0, 0, taipei)))

	o := events[1]
	assert.True(t, o.AllDay)
	assert.Equal(t, model.ShowAsFree, o.ShowAs)
	assert.Equal(t, 2*24*time.Hour, o.End.Sub(o.Start))

	c := events[2]
	assert.Equal(t, model.ShowAsOOF, c.ShowAs)
	assert.Equal(t, "Room 1", c.Location)
	assert.Equal(t, time.UTC, c.Start.Location())
}

func TestParse_RejectsEmptyBody(t *testing.T) {
	_, err := Parse(alice, nil, taipei)
	assert.Error(t, err)
}

func TestExpand(t *testing.T) {
	events, err := Parse(alice, calendar(standup, standupMoved, offsite, utcCall), taipei)
	require.NoError(t, err)

	res, err := Expand(events, ExpandConfig{
		DisplayLocation: taipei,
		RangeStart:      time.Date(2026, 10, 19, 0, 0, 0, 0, taipei),
		RangeEnd:        time.Date(2026, 11, 1, 0, 0, 0, 0, taipei),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Truncated)

	var standups []model.SourceEvent
	for _, ev := range res.Events {
		assert.Equal(t, "alice@example.com", ev.OwnerEmail)
		assert.Equal(t, "Alice", ev.OwnerName)
		assert.Equal(t, model.KindPersonal, ev.Kind)
		if strings.HasPrefix(ev.ID, "standup-1/") {
			standups = append(standups, ev)
		}
	}
	// 5 occurrences minus one EXDATE; the 22nd is moved.
	require.Len(t, standups, 4)
	assert.Equal(t, "2026-10-19T09:30:00", standups[0].Start.Value)
	assert.Equal(t, "Asia/Taipei", standups[0].Start.TimeZone)
	assert.Equal(t, "Standup (moved)", standups[2].Subject)
	assert.Equal(t, "2026-10-22T14:00:00", standups[2].Start.Value)

	var call, off model.SourceEvent
	for _, ev := range res.Events {
		switch ev.ID {
		case "call":
			call = ev
		case "offsite":
			off = ev
		}
	}
	assert.Equal(t, "2026-10-20T09:00:00", call.Start.Value)
	assert.True(t, off.IsAllDay)
	assert.Equal(t, "2026-10-26T00:00:00", off.Start.Value)
	assert.Equal(t, "2026-10-28T00:00:00", off.End.Value)
}

func TestExpand_WindowAndCap(t *testing.T) {
	events, err := Parse(alice, calendar(`BEGIN:VEVENT
UID:hourly
DTSTART:20261019T000000Z
DTEND:20261019T003000Z
RRULE:FREQ=HOURLY
END:VEVENT
`), taipei)
	require.NoError(t, err)

	res, err := Expand(events, ExpandConfig{
		DisplayLocation:        time.UTC,
		RangeStart:             time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		RangeEnd:               time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
		MaxOccurrencesPerEvent: 10,
	})
	require.NoError(t, err)
	assert.Len(t, res.Events, 10)
	assert.Equal(t, []string{"hourly"}, res.Truncated)

	_, err = Expand(events, ExpandConfig{RangeStart: time.Now(), RangeEnd: time.Now().Add(-time.Hour)})
	assert.Error(t, err)
}

func TestFetcher_ConditionalAndFallback(t *testing.T) {
	var hits, failing atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if failing.Load() == 1 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(calendar(utcCall))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{Owner: "alice@example.com", URL: srv.URL + "/secret.ics"}
	ctx := context.Background()

	first, err := f.FetchOne(ctx, src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := f.FetchOne(ctx, src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)

	failing.Store(1)
	third, err := f.FetchOne(ctx, src)
	require.NoError(t, err)
	assert.True(t, third.FromCache)
	assert.EqualValues(t, 3, hits.Load())
}

func TestFetchAll_PartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "bad") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(calendar(utcCall))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	results, err := f.FetchAll(context.Background(), []Source{
		{Owner: "good@example.com", URL: srv.URL + "/good.ics"},
		{Owner: "bad@example.com", URL: srv.URL + "/bad.ics"},
	})
	require.Len(t, results, 1)
	assert.Equal(t, "good@example.com", results[0].Source.Owner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad@example.com")
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://calendar.example.com/...(redacted)", redactURL("https://calendar.example.com/private/abc.ics?token=x"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}
