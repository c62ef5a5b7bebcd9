// Package booking is the slot-availability and booking-conflict engine. An Engine is
// constructed once and handed to every interface layer (chat bot, HTTP API, jobs).
package booking

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/workwork-1/projectbotsalon/pkg/domain/slots"
	"github.com/workwork-1/projectbotsalon/pkg/repository/model"
)

type Options struct {
	SlotStep     int    // minutes between candidate start times
	PhoneRegion  string // default region for phone parsing, e.g. "RU"
	ScheduleDays int    // rolling schedule horizon
	WorkStart    slots.Clock
	WorkEnd      slots.Clock
	WorkDays     []time.Weekday
	Now          func() time.Time
}

func DefaultOptions() Options {
	return Options{
		SlotStep:     slots.DefaultStep,
		PhoneRegion:  "RU",
		ScheduleDays: 14,
		WorkStart:    slots.MustClock("10:00"),
		WorkEnd:      slots.MustClock("19:00"),
		WorkDays:     []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		Now:          time.Now,
	}
}

type EventKind string

const (
	EventCreated   EventKind = "created"
	EventCancelled EventKind = "cancelled"
)

// Event describes a committed booking change.
type Event struct {
	Kind    EventKind
	Booking model.BookingView
}

// Notifier receives committed booking changes. Notify must not block for long.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

type Engine struct {
	repo     model.Repo
	opts     Options
	logger   zerolog.Logger
	notifier Notifier
	validate *validator.Validate
}

func New(repo model.Repo, opts Options, logger zerolog.Logger) *Engine {
	def := DefaultOptions()
	if opts.SlotStep <= 0 {
		opts.SlotStep = def.SlotStep
	}
	if opts.PhoneRegion == "" {
		opts.PhoneRegion = def.PhoneRegion
	}
	if opts.ScheduleDays <= 0 {
		opts.ScheduleDays = def.ScheduleDays
	}
	if opts.WorkEnd <= opts.WorkStart {
		opts.WorkStart, opts.WorkEnd = def.WorkStart, def.WorkEnd
	}
	if opts.WorkDays == nil {
		opts.WorkDays = def.WorkDays
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	return &Engine{
		repo:     repo,
		opts:     opts,
		logger:   logger.With().Str("component", "booking").Logger(),
		validate: validator.New(),
	}
}

// WithNotifier sets the receiver of booking events.
func (e *Engine) WithNotifier(n Notifier) *Engine {
	e.notifier = n
	return e
}

func (e *Engine) Options() Options { return e.opts }

func (e *Engine) notify(ctx context.Context, ev Event) {
	if e.notifier != nil {
		e.notifier.Notify(ctx, ev)
	}
}

func (e *Engine) today() time.Time {
	return slots.Day(e.opts.Now())
}

func (e *Engine) ListServices(ctx context.Context) ([]model.Service, error) {
	return e.repo.ListServices(ctx)
}

func (e *Engine) GetService(ctx context.Context, id int64) (*model.Service, error) {
	return e.repo.GetService(ctx, id)
}

func (e *Engine) ListMasters(ctx context.Context) ([]model.Master, error) {
	return e.repo.ListMasters(ctx)
}

func (e *Engine) GetMaster(ctx context.Context, id int64) (*model.Master, error) {
	return e.repo.GetMaster(ctx, id)
}
