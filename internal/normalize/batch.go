package normalize

import (
	"strings"
	"time"

	appLog "teamcal/internal/log"
	"teamcal/internal/model"
)

// Options carries the display preferences that shape a batch.
type Options struct {
	// Owners gives the base color per owner email.
	Owners []model.Owner
	// Selected restricts personal and on-call events to these owner emails.
	// A nil map selects every owner.
	Selected map[string]bool
	// ColorOverrides replaces an owner's base color, keyed by owner key.
	ColorOverrides map[string]string
	ShowHolidays   bool
	ShowOnCall     bool
	// OnCallColor is the base color of the on-call group.
	OnCallColor string
	Now         time.Time
}

// Result is the outcome of a batch: the events that normalized and the
// number of records dropped.
type Result struct {
	Events  []model.VisualEvent
	Dropped int
}

// Batch normalizes every record it is allowed to show. A bad record is logged
// and skipped; it never blanks the rest of the batch.
func Batch(sources []model.SourceEvent, opts Options) Result {
	colors := make(map[string]string, len(opts.Owners))
	for _, o := range opts.Owners {
		colors[strings.ToLower(o.Email)] = o.Color
	}

	res := Result{Events: make([]model.VisualEvent, 0, len(sources))}
	for _, src := range sources {
		if !visible(src, opts) {
			continue
		}
		ev, err := Normalize(src, baseColor(src, colors, opts), opts.Now)
		if err != nil {
			res.Dropped++
			appLog.Error("normalize: dropping event", err,
				"id", src.ID,
				"owner", src.OwnerEmail,
				"kind", src.Kind.String(),
			)
			continue
		}
		res.Events = append(res.Events, ev)
	}
	return res
}

func visible(src model.SourceEvent, opts Options) bool {
	switch src.Kind {
	case model.KindHoliday:
		return opts.ShowHolidays
	case model.KindOnCall:
		if !opts.ShowOnCall {
			return false
		}
	}
	if opts.Selected == nil {
		return true
	}
	return opts.Selected[strings.ToLower(src.OwnerEmail)]
}

func baseColor(src model.SourceEvent, colors map[string]string, opts Options) string {
	key := ownerKey(src)
	if c, ok := opts.ColorOverrides[key]; ok && c != "" {
		return c
	}
	switch src.Kind {
	case model.KindOnCall:
		if opts.OnCallColor != "" {
			return opts.OnCallColor
		}
		// Fall back to the person on call.
		if c, ok := colors[strings.ToLower(src.OwnerEmail)]; ok {
			return c
		}
	case model.KindPersonal:
		if c, ok := colors[key]; ok {
			return c
		}
	}
	return model.DefaultOwnerColor
}
