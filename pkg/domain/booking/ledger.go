package booking

import (
	"context"
	"errors"

	"github.com/workwork-1/projectbotsalon/pkg/domain/slots"
	"github.com/workwork-1/projectbotsalon/pkg/metrics"
	"github.com/workwork-1/projectbotsalon/pkg/repository/model"
	"github.com/workwork-1/projectbotsalon/pkg/utils/errs"
)

// CreateBooking commits a confirmed booking if startTime is still a free slot for the
// service's duration. Availability is recomputed inside the (master, date) transaction,
// so a stale slot list or a lost race yields errs.ErrConflict.
func (e *Engine) CreateBooking(ctx context.Context, clientID, serviceID, masterID int64, date, startTime string) (int64, error) {
	b, err := e.Book(ctx, clientID, serviceID, masterID, date, startTime)
	if err != nil {
		return 0, err
	}
	return b.ID, nil
}

// Book is CreateBooking returning the stored record.
func (e *Engine) Book(ctx context.Context, clientID, serviceID, masterID int64, date, startTime string) (model.Booking, error) {
	day, err := slots.ParseDate(date)
	if err != nil {
		return model.Booking{}, err
	}
	start, err := slots.ParseClock(startTime)
	if err != nil {
		return model.Booking{}, err
	}

	svc, err := e.repo.GetService(ctx, serviceID)
	if err != nil {
		return model.Booking{}, err
	}
	master, err := e.repo.GetMaster(ctx, masterID)
	if err != nil {
		return model.Booking{}, err
	}
	client, err := e.repo.GetClient(ctx, clientID)
	if err != nil {
		return model.Booking{}, err
	}

	b := model.Booking{
		ClientID:  clientID,
		ServiceID: serviceID,
		MasterID:  masterID,
		Day:       day,
		StartTime: start,
		EndTime:   start.Add(svc.DurationMin),
		Status:    model.StatusConfirmed,
	}

	err = e.repo.WithinDay(ctx, masterID, day, func(ctx context.Context, tx model.DayTx) error {
		sched, err := tx.Schedule(ctx)
		if err != nil {
			return err
		}
		if sched == nil {
			return errs.New("master does not work that day").
				Arg("master_id", masterID).Arg("date", date).Kind(errs.ErrConflict)
		}
		booked, err := tx.ConfirmedBookings(ctx)
		if err != nil {
			return err
		}
		free := slots.Available(sched.Window(), svc.DurationMin, e.opts.SlotStep, busy(booked))
		if !slots.Includes(free, start) {
			return errs.New("slot is not available").
				Arg("master_id", masterID).Arg("date", date).Arg("start", startTime).Kind(errs.ErrConflict)
		}
		id, err := tx.InsertBooking(ctx, b)
		if err != nil {
			return err
		}
		b.ID = id
		return nil
	})
	if err != nil {
		if errors.Is(err, errs.ErrConflict) {
			metrics.IncBookingConflict()
			e.logger.Debug().Err(err).Int64("master_id", masterID).Str("date", date).Str("start", startTime).Msg("booking rejected")
		} else {
			e.logger.Error().Err(err).Int64("master_id", masterID).Str("date", date).Msg("create booking failed")
		}
		return model.Booking{}, err
	}

	metrics.IncBookingCreated()
	e.logger.Info().
		Int64("booking_id", b.ID).Int64("client_id", clientID).Int64("master_id", masterID).
		Str("date", date).Str("start", b.StartTime.String()).Str("end", b.EndTime.String()).
		Msg("booking created")

	e.notify(ctx, Event{Kind: EventCreated, Booking: model.BookingView{
		ID:          b.ID,
		Day:         b.Day,
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
		ServiceName: svc.Name,
		DurationMin: svc.DurationMin,
		MasterName:  master.Name,
		ClientName:  client.Name,
		ClientPhone: client.Phone,
	}})
	return b, nil
}

// CancelBooking moves a booking to cancelled. Cancelling an already cancelled booking
// succeeds without any further change.
func (e *Engine) CancelBooking(ctx context.Context, bookingID int64) error {
	changed, err := e.repo.CancelBooking(ctx, bookingID)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			e.logger.Error().Err(err).Int64("booking_id", bookingID).Msg("cancel booking failed")
		}
		return err
	}
	if !changed {
		return nil
	}

	metrics.IncBookingCancelled()
	e.logger.Info().Int64("booking_id", bookingID).Msg("booking cancelled")

	if e.notifier != nil {
		if v, err := e.describe(ctx, bookingID); err == nil {
			e.notify(ctx, Event{Kind: EventCancelled, Booking: v})
		} else {
			e.logger.Warn().Err(err).Int64("booking_id", bookingID).Msg("describe cancelled booking")
		}
	}
	return nil
}

// ListClientBookings returns the client's confirmed bookings.
func (e *Engine) ListClientBookings(ctx context.Context, clientID int64) ([]model.BookingView, error) {
	if _, err := e.repo.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	return e.repo.ListClientBookings(ctx, clientID)
}

// GetBooking returns the stored booking record.
func (e *Engine) GetBooking(ctx context.Context, bookingID int64) (*model.Booking, error) {
	return e.repo.GetBooking(ctx, bookingID)
}

func (e *Engine) describe(ctx context.Context, bookingID int64) (model.BookingView, error) {
	b, err := e.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return model.BookingView{}, err
	}
	v := model.BookingView{ID: b.ID, Day: b.Day, StartTime: b.StartTime, EndTime: b.EndTime}
	if svc, err := e.repo.GetService(ctx, b.ServiceID); err == nil {
		v.ServiceName, v.DurationMin = svc.Name, svc.DurationMin
	}
	if m, err := e.repo.GetMaster(ctx, b.MasterID); err == nil {
		v.MasterName = m.Name
	}
	if c, err := e.repo.GetClient(ctx, b.ClientID); err == nil {
		v.ClientName, v.ClientPhone = c.Name, c.Phone
	}
	return v, nil
}
