// Package clock provides the server clock and the tenant timezone policy
// that decides calendar boundaries (day buckets, weeks, months).
package clock

import (
	"sync"
	"time"
)

// DefaultTimezone is used when neither the gym nor the configuration names one.
const DefaultTimezone = "America/Argentina/Buenos_Aires"

// DayLayout is the format of a day bucket.
const DayLayout = "2006-01-02"

// Clock is the source of "now" for every lifecycle decision.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Manual is a settable clock for tests and backfills.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Zones resolves IANA timezone names, falling back to a default location
// for empty or unknown names. Loaded locations are cached.
type Zones struct {
	fallback *time.Location
	cache    sync.Map
}

// NewZones builds a resolver whose fallback is defaultName, or
// DefaultTimezone when defaultName is empty.
func NewZones(defaultName string) (*Zones, error) {
	if defaultName == "" {
		defaultName = DefaultTimezone
	}
	loc, err := time.LoadLocation(defaultName)
	if err != nil {
		return nil, err
	}
	return &Zones{fallback: loc}, nil
}

// UTCZones resolves every unknown name to UTC.
func UTCZones() *Zones {
	return &Zones{fallback: time.UTC}
}

// Location returns the location for name or the fallback.
func (z *Zones) Location(name string) *time.Location {
	if name == "" {
		return z.fallback
	}
	if loc, ok := z.cache.Load(name); ok {
		return loc.(*time.Location)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return z.fallback
	}
	z.cache.Store(name, loc)
	return loc
}

// Fallback returns the default location.
func (z *Zones) Fallback() *time.Location {
	return z.fallback
}

// Valid reports whether name is a loadable IANA timezone.
func Valid(name string) bool {
	if name == "" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

// DayBucket is the local calendar date of t in loc.
func DayBucket(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayLayout)
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

// StartOfWeek returns local midnight of the Monday on or before t.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	d := StartOfDay(t, loc)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// StartOfMonth returns local midnight of the first day of t's month.
func StartOfMonth(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), 1, 0, 0, 0, 0, loc)
}
