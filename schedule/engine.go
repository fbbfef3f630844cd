// Package schedule decides when the next automatic post is generated and
// keeps exactly one generation timer armed.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"postpilot/metrics"
	"postpilot/pkg/postpilot"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultHour   = 9
	defaultMinute = 0
)

// Generator produces one pending post per trigger.
type Generator interface {
	Generate(ctx context.Context, topic string) (postpilot.Post, error)
}

// Engine owns the schedule configuration and the single live timer.
type Engine struct {
	mu         sync.Mutex
	cfg        postpilot.ScheduleConfig
	timer      Timer
	next       time.Time
	epoch      uint64 // bumped on every cancel; stale callbacks compare and bail
	generator  Generator
	clock      Clock
	runTimeout time.Duration
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Config holds engine configuration.
type Config struct {
	Generator  Generator
	Clock      Clock         // Defaults to the wall clock
	RunTimeout time.Duration // Bound on one scheduled generation; zero means no bound
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// New creates an idle engine. Call Update to arm it.
func New(cfg *Config) *Engine {
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	return &Engine{
		generator:  cfg.Generator,
		clock:      clock,
		runTimeout: cfg.RunTimeout,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// Update replaces the schedule. Any armed timer is cancelled before a new one
// is armed, so at most one timer is ever live. An unparseable time falls back
// to 09:00; an unknown timezone is rejected and leaves the engine untouched.
func (e *Engine) Update(cfg postpilot.ScheduleConfig) (postpilot.ScheduleConfig, error) {
	if !cfg.Frequency.Valid() {
		return postpilot.ScheduleConfig{}, fmt.Errorf("unknown frequency %q: %w", cfg.Frequency, postpilot.ErrInvalidArgument)
	}
	if strings.TrimSpace(cfg.Timezone) == "" {
		return postpilot.ScheduleConfig{}, fmt.Errorf("timezone is required: %w", postpilot.ErrInvalidArgument)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return postpilot.ScheduleConfig{}, fmt.Errorf("unknown timezone %q: %w", cfg.Timezone, postpilot.ErrInvalidArgument)
	}

	hour, minute, ok := ParseClock(cfg.Time)
	if !ok {
		e.logger.Warn("Unparseable schedule time, using default", "time", cfg.Time, "default", "09:00")
		hour, minute = defaultHour, defaultMinute
	}
	cfg.Time = fmt.Sprintf("%02d:%02d", hour, minute)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelLocked()
	e.cfg = cfg

	if !cfg.IsActive {
		e.logger.Info("Schedule disabled", "frequency", cfg.Frequency, "time", cfg.Time, "timezone", cfg.Timezone)
		return cfg, nil
	}

	now := e.clock.Now()
	next := NextFire(now, hour, minute, loc)
	e.armLocked(next, now)

	e.logger.Info("Schedule armed",
		"frequency", cfg.Frequency,
		"time", cfg.Time,
		"timezone", cfg.Timezone,
		"next_run", next.Format(time.RFC3339),
		"interval", Interval(cfg.Frequency).String())
	return cfg, nil
}

// Config returns the current schedule.
func (e *Engine) Config() postpilot.ScheduleConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// NextRun returns the armed firing instant, or false when idle.
func (e *Engine) NextRun() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer == nil {
		return time.Time{}, false
	}
	return e.next, true
}

// Stop cancels the live timer. A generation already in flight runs to completion.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked()
	e.logger.Info("Schedule stopped")
}

func (e *Engine) cancelLocked() {
	e.epoch++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.next = time.Time{}
}

func (e *Engine) armLocked(at, now time.Time) {
	epoch := e.epoch
	e.next = at
	e.timer = e.clock.AfterFunc(at.Sub(now), func() { e.fire(epoch) })
}

func (e *Engine) fire(epoch uint64) {
	e.mu.Lock()
	if epoch != e.epoch || e.timer == nil {
		e.mu.Unlock()
		return
	}

	// Re-arm from the scheduled instant, skipping slots that already passed.
	interval := Interval(e.cfg.Frequency)
	scheduled := e.next
	now := e.clock.Now()
	next := scheduled.Add(interval)
	for !next.After(now) {
		next = next.Add(interval)
	}
	e.armLocked(next, now)
	e.mu.Unlock()

	e.metrics.IncScheduleFire()
	e.logger.Info("Scheduled generation starting",
		"scheduled_for", scheduled.Format(time.RFC3339),
		"next_run", next.Format(time.RFC3339))

	ctx := context.Background()
	if e.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.runTimeout)
		defer cancel()
	}

	p, err := e.generator.Generate(ctx, "")
	if err != nil {
		e.logger.Warn("Scheduled generation failed", "error", err)
		return
	}
	e.logger.Info("Scheduled generation completed", "post_id", p.ID, "topic", p.Topic)
}

// NextFire returns the next instant at hour:minute wall-clock time in loc that
// is strictly after now. If today's slot has passed (or is exactly now) the
// slot on the following calendar day is used.
func NextFire(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !candidate.After(local) {
		candidate = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return candidate
}

// Interval is the fixed recurrence period for a frequency. Monthly is a flat
// 30 days, not a calendar month.
func Interval(f postpilot.Frequency) time.Duration {
	switch f {
	case postpilot.Weekly:
		return 7 * 24 * time.Hour
	case postpilot.Monthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// ParseClock parses "HH:MM" (hour may be one digit).
func ParseClock(s string) (hour, minute int, ok bool) {
	h, m, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found || len(h) < 1 || len(h) > 2 || len(m) != 2 {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, false
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}
