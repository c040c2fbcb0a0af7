package model

// Category is the closed set of event kinds. Only the types in this file
// implement it.
type Category interface {
	category()
	Name() string
}

// Personal is an event from an owner's own calendar.
type Personal struct {
	Email       string
	DisplayName string
	ShowAs      ShowAs
}

// Holiday is a public holiday. Holidays are never interactive.
type Holiday struct {
	Region string
}

// OnCall is an on-call rota shift.
type OnCall struct {
	Email       string
	DisplayName string
}

func (Personal) category() {}
func (Holiday) category()  {}
func (OnCall) category()   {}

func (Personal) Name() string { return "personal" }
func (Holiday) Name() string  { return "holiday" }
func (OnCall) Name() string   { return "oncall" }

// IsInteractive dispatches on the category. A nil category is not interactive.
func IsInteractive(c Category) bool {
	switch c.(type) {
	case Personal, OnCall:
		return true
	case Holiday:
		return false
	default:
		return false
	}
}

// CategoryName returns the category name, or "" for nil.
func CategoryName(c Category) string {
	if c == nil {
		return ""
	}
	return c.Name()
}
