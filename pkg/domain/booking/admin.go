package booking

import (
	"context"
	"strings"
	"time"

	"github.com/workwork-1/projectbotsalon/pkg/repository/model"
	"github.com/workwork-1/projectbotsalon/pkg/utils/errs"
)

// Period selects the admin booking listing range.
type Period string

const (
	PeriodAll   Period = "all"
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
)

// ParsePeriod accepts "all", "today" and "week". Empty means all.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodAll, nil
	case PeriodAll, PeriodToday, PeriodWeek:
		return p, nil
	default:
		return "", errs.Validation("unknown period").Arg("period", s)
	}
}

// ListBookings returns confirmed bookings of every master for the period, ordered by
// date and start time. The week period covers today and the next seven days.
func (e *Engine) ListBookings(ctx context.Context, period Period) ([]model.BookingView, error) {
	today := e.today()
	var from, to *time.Time
	switch period {
	case PeriodAll, "":
	case PeriodToday:
		from, to = &today, &today
	case PeriodWeek:
		end := today.AddDate(0, 0, 7)
		from, to = &today, &end
	default:
		return nil, errs.Validation("unknown period").Arg("period", string(period))
	}
	return e.repo.ListBookings(ctx, from, to)
}
