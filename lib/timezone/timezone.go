package timezone

import (
	"sync/atomic"
	"time"
)

var location atomic.Pointer[time.Location]

func init() {
	location.Store(time.Local)
}

// SetLocation changes the location used by Now and Format. an empty name
// keeps the current location.
func SetLocation(name string) error {
	if name == "" {
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return err
	}
	location.Store(loc)
	return nil
}

func Location() *time.Location {
	return location.Load()
}

func Now() time.Time {
	return time.Now().In(Location())
}

// Format renders t in the display location, the zero time renders as "-".
func Format(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(Location()).Format("2006/01/02 15:04")
}
