// Package holiday provides the public holiday calendar shown in the shared
// view. A built-in Taiwan table is used unless a JSON file replaces it.
package holiday

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	appLog "teamcal/internal/log"
	"teamcal/internal/model"
)

// Holiday is one named public holiday.
type Holiday struct {
	Subject string `json:"subject"`
	Date    string `json:"date"`
}

// Fallback is the Taiwan national holiday table for 2024 to 2027.
var Fallback = []Holiday{
	{"元旦", "2024-01-01"},
	{"除夕", "2024-02-08"},
	{"春節假期", "2024-02-09"},
	{"春節", "2024-02-10"},
	{"春節假期", "2024-02-12"},
	{"春節假期", "2024-02-13"},
	{"春節補假", "2024-02-14"},
	{"和平紀念日", "2024-02-28"},
	{"兒童節", "2024-04-04"},
	{"清明節", "2024-04-05"},
	{"端午節", "2024-06-10"},
	{"中秋節", "2024-09-17"},
	{"國慶日", "2024-10-10"},

	{"元旦", "2025-01-01"},
	{"除夕", "2025-01-29"},
	{"春節假期", "2025-01-30"},
	{"春節", "2025-01-31"},
	{"春節假期", "2025-02-01"},
	{"春節補假", "2025-02-03"},
	{"和平紀念日", "2025-02-28"},
	{"兒童節", "2025-04-04"},
	{"清明節", "2025-04-05"},
	{"端午節", "2025-06-02"},
	{"中秋節", "2025-09-18"},
	{"國慶日", "2025-10-10"},

	{"元旦", "2026-01-01"},
	{"除夕", "2026-02-16"},
	{"春節假期", "2026-02-17"},
	{"春節", "2026-02-18"},
	{"春節假期", "2026-02-19"},
	{"春節補假", "2026-02-20"},
	{"和平紀念日", "2026-02-28"},
	{"兒童節", "2026-04-04"},
	{"清明節", "2026-04-05"},
	{"端午節", "2026-06-19"},
	{"中秋節", "2026-09-25"},
	{"國慶日", "2026-10-10"},

	{"元旦", "2027-01-01"},
	{"除夕", "2027-02-05"},
	{"春節假期", "2027-02-06"},
	{"春節", "2027-02-07"},
	{"春節假期", "2027-02-08"},
	{"春節補假", "2027-02-09"},
	{"和平紀念日", "2027-02-28"},
	{"兒童節", "2027-04-04"},
	{"清明節", "2027-04-05"},
	{"端午節", "2027-06-09"},
	{"中秋節", "2027-09-15"},
	{"國慶日", "2027-10-10"},
}

// Load returns the holidays in path, or Fallback when path is empty or
// unreadable.
func Load(path string) []Holiday {
	if path == "" {
		return Fallback
	}
	list, err := readFile(path)
	if err != nil {
		appLog.Warn("holiday: using built-in table", "path", path, "err", err)
		return Fallback
	}
	return list
}

func readFile(path string) ([]Holiday, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list []Holiday
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("holiday file must be a list of {subject,date}: %w", err)
	}
	return list, nil
}

// Events converts holidays falling in [from, to) into all-day source
// events in loc. Entries with a bad date are skipped.
func Events(list []Holiday, from, to time.Time, loc *time.Location) []model.SourceEvent {
	var out []model.SourceEvent
	for _, h := range list {
		day, err := time.ParseInLocation(time.DateOnly, h.Date, loc)
		if err != nil {
			appLog.Warn("holiday: skipping entry with bad date", "date", h.Date)
			continue
		}
		next := day.AddDate(0, 0, 1)
		if !next.After(from) || !day.Before(to) {
			continue
		}
		out = append(out, model.SourceEvent{
			ID:         "holiday-" + h.Date,
			Subject:    h.Subject,
			Start:      model.DateTimeOf(day),
			End:        model.DateTimeOf(next),
			ShowAs:     model.ShowAsFree,
			IsAllDay:   true,
			OwnerEmail: model.HolidayOwnerKey,
			Kind:       model.KindHoliday,
		})
	}
	return out
}
