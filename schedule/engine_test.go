package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"postpilot/pkg/postpilot"
	"sort"
	"sync"
	"testing"
	"time"
)

// fakeClock fires timers synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// live counts timers that are neither stopped nor fired.
func (c *fakeClock) live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves time forward, firing due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
		next := due[0]
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.f()
	}
}

type countingGenerator struct {
	mu    sync.Mutex
	times []time.Time
	clock *fakeClock
	err   error
}

func (g *countingGenerator) Generate(ctx context.Context, topic string) (postpilot.Post, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.times = append(g.times, g.clock.Now())
	if g.err != nil {
		return postpilot.Post{}, g.err
	}
	return postpilot.Post{ID: "p"}, nil
}

func (g *countingGenerator) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.times)
}

func newTestEngine(now time.Time) (*Engine, *fakeClock, *countingGenerator) {
	clock := &fakeClock{now: now}
	gen := &countingGenerator{clock: clock}
	e := New(&Config{
		Generator: gen,
		Clock:     clock,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return e, clock, gen
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("timezone database lacks %s: %v", name, err)
	}
	return loc
}

func TestNextFire(t *testing.T) {
	newYork := mustLoad(t, "America/New_York")
	tests := []struct {
		name   string
		now    time.Time
		hour   int
		minute int
		loc    *time.Location
		want   time.Time
	}{
		{
			name: "slot already passed today rolls to tomorrow",
			now:  time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC),
			hour: 9, minute: 0, loc: time.UTC,
			want: time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "slot later today",
			now:  time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC),
			hour: 9, minute: 0, loc: time.UTC,
			want: time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "slot exactly now rolls to tomorrow",
			now:  time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC),
			hour: 9, minute: 0, loc: time.UTC,
			want: time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "end of month rolls into next month",
			now:  time.Date(2025, 6, 30, 23, 0, 0, 0, time.UTC),
			hour: 7, minute: 15, loc: time.UTC,
			want: time.Date(2025, 7, 1, 7, 15, 0, 0, time.UTC),
		},
		{
			// 02:00 UTC is 22:00 the previous evening in New York (EDT).
			name: "day is taken in the schedule timezone",
			now:  time.Date(2025, 6, 10, 2, 0, 0, 0, time.UTC),
			hour: 23, minute: 0, loc: newYork,
			want: time.Date(2025, 6, 9, 23, 0, 0, 0, newYork),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextFire(tt.now, tt.hour, tt.minute, tt.loc)
			if !got.Equal(tt.want) {
				t.Errorf("NextFire() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInterval(t *testing.T) {
	tests := []struct {
		freq postpilot.Frequency
		want time.Duration
	}{
		{postpilot.Daily, 24 * time.Hour},
		{postpilot.Weekly, 7 * 24 * time.Hour},
		// Flat 30 days regardless of month length.
		{postpilot.Monthly, 30 * 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			if got := Interval(tt.freq); got != tt.want {
				t.Errorf("Interval(%s) = %v, want %v", tt.freq, got, tt.want)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		input      string
		wantHour   int
		wantMinute int
		wantOK     bool
	}{
		{"09:00", 9, 0, true},
		{"9:05", 9, 5, true},
		{"23:59", 23, 59, true},
		{"00:00", 0, 0, true},
		{"24:00", 0, 0, false},
		{"12:60", 0, 0, false},
		{"noon", 0, 0, false},
		{"", 0, 0, false},
		{"1200", 0, 0, false},
		{"12:5", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			h, m, ok := ParseClock(tt.input)
			if ok != tt.wantOK || h != tt.wantHour || m != tt.wantMinute {
				t.Errorf("ParseClock(%q) = %d, %d, %v; want %d, %d, %v", tt.input, h, m, ok, tt.wantHour, tt.wantMinute, tt.wantOK)
			}
		})
	}
}

func TestUpdateArmsNextDay(t *testing.T) {
	now := time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC)
	e, clock, gen := newTestEngine(now)

	cfg, err := e.Update(postpilot.ScheduleConfig{Frequency: postpilot.Daily, Time: "09:00", Timezone: "UTC", IsActive: true})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if cfg.Time != "09:00" {
		t.Errorf("Update() time = %q, want 09:00", cfg.Time)
	}

	next, ok := e.NextRun()
	want := time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC)
	if !ok || !next.Equal(want) {
		t.Fatalf("NextRun() = %v, %v; want %v, true", next, ok, want)
	}

	clock.Advance(23*time.Hour + 29*time.Minute)
	if gen.count() != 0 {
		t.Fatalf("generated %d posts before the slot, want 0", gen.count())
	}
	clock.Advance(time.Minute)
	if gen.count() != 1 {
		t.Fatalf("generated %d posts at the slot, want 1", gen.count())
	}
	if !gen.times[0].Equal(want) {
		t.Errorf("generation at %v, want %v", gen.times[0], want)
	}
}

func TestRecurringDaily(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	e, clock, gen := newTestEngine(now)
	if _, err := e.Update(postpilot.ScheduleConfig{Frequency: postpilot.Daily, Time: "09:00", Timezone: "UTC", IsActive: true}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	clock.Advance(3*24*time.Hour + 2*time.Hour)

	if gen.count() != 4 {
		t.Fatalf("generated %d posts over 3 days, want 4", gen.count())
	}
	for i, at := range gen.times {
		want := time.Date(2025, 6, 10+i, 9, 0, 0, 0, time.UTC)
		if !at.Equal(want) {
			t.Errorf("generation %d at %v, want %v", i, at, want)
		}
	}
	if n := clock.live(); n != 1 {
		t.Errorf("live timers = %d, want 1", n)
	}
}

func TestMonthlyIsThirtyDays(t *testing.T) {
	// Thirty days after January 31 is March 2, not a calendar month later.
	now := time.Date(2025, 1, 31, 8, 0, 0, 0, time.UTC)
	e, clock, gen := newTestEngine(now)
	if _, err := e.Update(postpilot.ScheduleConfig{Frequency: postpilot.Monthly, Time: "09:00", Timezone: "UTC", IsActive: true}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	clock.Advance(time.Hour)
	if gen.count() != 1 {
		t.Fatalf("first firing count = %d, want 1", gen.count())
	}

	next, _ := e.NextRun()
	want := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("NextRun() after monthly fire = %v, want %v", next, want)
	}
}

func TestWeeklyRecurrence(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	e, clock, gen := newTestEngine(now)
	if _, err := e.Update(postpilot.ScheduleConfig{Frequency: postpilot.Weekly, Time: "09:00", Timezone: "UTC", IsActive: true}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	clock.Advance(8 * 24 * time.Hour)
	if gen.count() != 2 {
		t.Fatalf("generated %d posts over 8 days, want 2", gen.count())
	}
	if want := time.Date(2025, 6, 17, 9, 0, 0, 0, time.UTC); !gen.times[1].Equal(want) {
		t.Errorf("second weekly generation at %v, want %v", gen.times[1], want)
	}
}

func TestUpdateWhileArmedFiresOnce(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	e, clock, gen := newTestEngine(now)

	if _, err := e.Update(postpilot.ScheduleConfig{Frequency: postpilot.Daily, Time: "09:00", Timezone: "UTC", IsActive: true}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if _, err := e.Update(postpilot.ScheduleConfig{Frequency: postpilot.Daily, Time: "10:00", Timezone: "UTC", IsActive: true}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if n := clock.live(); n != 1 {
		t.Fatalf("live timers after re-arm = %d, want 1", n)
	}

	clock.Advance(90 * time.Minute) // past the old 09:00 slot
	if gen.count() != 0 {
		t.Fatalf("old timer fired: %d generations", gen.count())
	}

	clock.Advance(30 * time.Minute) // 10:00
	if gen.count() != 1 {
		t.Fatalf("generations at new slot = %d, want 1", gen.count())
	}
	if want := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC); !gen.times[0].Equal(want) {
		t.Errorf("generation at %v, want %v", gen.times[0], want)
	}
}

func TestStaleCallbackIsIgnored(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	e, clock, gen := newTestEngine(now)
	if _, err := e.Update(postpilot.ScheduleConfig{Frequency: postpilot.Daily, Time: "09:00", Timezone: "UTC", IsActive: true}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	// Capture the armed callback, then re-arm; a callback that already
	// escaped Stop must not generate.
	clock.mu.Lock()
	stale := clock.timers[0].f
	clock.mu.Unlock()

	if _, err := e.Update(postpilot.ScheduleConfig{Frequency: postpilot.Daily, Time: "10:00", Timezone: "UTC", IsActive: true}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	stale()

	if gen.count() != 0 {
		t.Errorf("stale callback generated %d posts, want 0", gen.count())
	}
	next, _ := e.NextRun()
	if want := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("NextRun() = %v, want %v", next, want)
	}
}

func TestUpdateInactiveCancels(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	e, clock, gen := newTestEngine(now)
	if _, err := e.Update(postpilot.ScheduleConfig{Frequency: postpilot.Daily, Time: "09:00", Timezone: "UTC", IsActive: true}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if _, err := e.Update(postpilot.ScheduleConfig{Frequency: postpilot.Daily, Time: "09:00", Timezone: "UTC", IsActive: false}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if _, ok := e.NextRun(); ok {
		t.Error("NextRun() should report idle for an inactive schedule")
	}
	if n := clock.live(); n != 0 {
		t.Errorf("live timers = %d, want 0", n)
	}
	clock.Advance(48 * time.Hour)
	if gen.count() != 0 {
		t.Errorf("inactive schedule generated %d posts", gen.count())
	}
}

func TestUpdateBadTimeFallsBackToNine(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	e, _, _ := newTestEngine(now)

	cfg, err := e.Update(postpilot.ScheduleConfig{Frequency: postpilot.Daily, Time: "lunchtime", Timezone: "UTC", IsActive: true})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if cfg.Time != "09:00" {
		t.Errorf("Update() time = %q, want fallback 09:00", cfg.Time)
	}
	next, _ := e.NextRun()
	if want := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("NextRun() = %v, want %v", next, want)
	}
}

// Unknown timezones are rejected outright instead of silently defaulting to UTC.
func TestUpdateRejectsUnknownTimezone(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	e, clock, _ := newTestEngine(now)
	original := postpilot.ScheduleConfig{Frequency: postpilot.Daily, Time: "09:00", Timezone: "UTC", IsActive: true}
	if _, err := e.Update(original); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	for _, tz := range []string{"Mars/Olympus_Mons", "", "   "} {
		_, err := e.Update(postpilot.ScheduleConfig{Frequency: postpilot.Daily, Time: "10:00", Timezone: tz, IsActive: true})
		if !errors.Is(err, postpilot.ErrInvalidArgument) {
			t.Errorf("Update(timezone=%q) error = %v, want ErrInvalidArgument", tz, err)
		}
	}

	if got := e.Config(); got != original {
		t.Errorf("Config() after rejected update = %+v, want %+v", got, original)
	}
	if n := clock.live(); n != 1 {
		t.Errorf("live timers = %d, want the original 1", n)
	}
}

func TestUpdateRejectsUnknownFrequency(t *testing.T) {
	e, _, _ := newTestEngine(time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC))
	_, err := e.Update(postpilot.ScheduleConfig{Frequency: "hourly", Time: "09:00", Timezone: "UTC", IsActive: true})
	if !errors.Is(err, postpilot.ErrInvalidArgument) {
		t.Errorf("Update() error = %v, want ErrInvalidArgument", err)
	}
}

func TestGenerationFailureKeepsSchedule(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	e, clock, gen := newTestEngine(now)
	gen.err = postpilot.ErrNoActiveTopics
	if _, err := e.Update(postpilot.ScheduleConfig{Frequency: postpilot.Daily, Time: "09:00", Timezone: "UTC", IsActive: true}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	clock.Advance(2 * time.Hour)
	if gen.count() != 1 {
		t.Fatalf("attempts = %d, want 1", gen.count())
	}
	next, ok := e.NextRun()
	if want := time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC); !ok || !next.Equal(want) {
		t.Errorf("NextRun() = %v, %v; want %v, true", next, ok, want)
	}
}

func TestStop(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	e, clock, gen := newTestEngine(now)
	if _, err := e.Update(postpilot.ScheduleConfig{Frequency: postpilot.Daily, Time: "09:00", Timezone: "UTC", IsActive: true}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	e.Stop()
	clock.Advance(48 * time.Hour)

	if gen.count() != 0 {
		t.Errorf("stopped engine generated %d posts", gen.count())
	}
	if _, ok := e.NextRun(); ok {
		t.Error("NextRun() should report idle after Stop")
	}
}
