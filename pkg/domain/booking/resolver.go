package booking

import (
	"context"
	"time"

	"github.com/workwork-1/projectbotsalon/pkg/domain/slots"
	"github.com/workwork-1/projectbotsalon/pkg/metrics"
	"github.com/workwork-1/projectbotsalon/pkg/repository/model"
	"github.com/workwork-1/projectbotsalon/pkg/utils/errs"
)

// SlotView is a free slot in wire format.
type SlotView struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// WorkWindow returns the master's working window on day. ok is false when the master
// does not work that day.
func (e *Engine) WorkWindow(ctx context.Context, masterID int64, day time.Time) (w slots.Window, ok bool, err error) {
	s, err := e.repo.GetSchedule(ctx, masterID, day)
	if err != nil || s == nil {
		return slots.Window{}, false, err
	}
	return s.Window(), true, nil
}

// GetAvailableSlots lists free start times for a service of durationMin minutes.
// A day without a schedule yields an empty list.
func (e *Engine) GetAvailableSlots(ctx context.Context, masterID int64, date string, durationMin int) ([]SlotView, error) {
	if durationMin <= 0 {
		return nil, errs.Validation("duration must be positive").Arg("duration", durationMin)
	}
	day, err := slots.ParseDate(date)
	if err != nil {
		return nil, err
	}
	if _, err := e.repo.GetMaster(ctx, masterID); err != nil {
		return nil, err
	}
	metrics.IncSlotQuery()

	w, ok, err := e.WorkWindow(ctx, masterID, day)
	if err != nil {
		return nil, err
	}
	out := []SlotView{}
	if !ok {
		return out, nil
	}
	booked, err := e.repo.ListConfirmedBookings(ctx, masterID, day)
	if err != nil {
		return nil, err
	}
	for _, s := range slots.Available(w, durationMin, e.opts.SlotStep, busy(booked)) {
		out = append(out, SlotView{StartTime: s.Start.String(), EndTime: s.End.String()})
	}
	return out, nil
}

// AvailableDates returns the days in [from, from+days) on which the master works.
func (e *Engine) AvailableDates(ctx context.Context, masterID int64, from time.Time, days int) ([]time.Time, error) {
	if days <= 0 {
		return nil, nil
	}
	from = slots.Day(from)
	return e.repo.ListScheduleDays(ctx, masterID, from, from.AddDate(0, 0, days-1))
}

func busy(bookings []model.Booking) []slots.Interval {
	out := make([]slots.Interval, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, b.Interval())
	}
	return out
}
