package booking

import (
	"context"
	"slices"
	"time"

	"github.com/workwork-1/projectbotsalon/pkg/domain/slots"
	"github.com/workwork-1/projectbotsalon/pkg/repository/model"
	"github.com/workwork-1/projectbotsalon/pkg/utils/errs"
)

// SeedCatalog loads the initial services and masters. It is a no-op when the catalog
// already holds services.
func (e *Engine) SeedCatalog(ctx context.Context, services []model.Service, masters []model.Master) (bool, error) {
	for _, s := range services {
		if s.Name == "" {
			return false, errs.Validation("service name is required")
		}
		if s.DurationMin <= 0 {
			return false, errs.Validation("service duration must be positive").
				Arg("service", s.Name).Arg("duration", s.DurationMin)
		}
	}
	for _, m := range masters {
		if m.Name == "" {
			return false, errs.Validation("master name is required")
		}
	}

	seeded, err := e.repo.SeedCatalog(ctx, services, masters)
	if err != nil {
		return false, err
	}
	if seeded {
		e.logger.Info().Int("services", len(services)).Int("masters", len(masters)).Msg("catalog seeded")
	}
	return seeded, nil
}

// EnsureSchedules creates the default working window for every master on every
// working day of the rolling horizon starting at from. Existing rows are left intact.
func (e *Engine) EnsureSchedules(ctx context.Context, from time.Time) (int, error) {
	masters, err := e.repo.ListMasters(ctx)
	if err != nil {
		return 0, err
	}
	from = slots.Day(from)

	rows := make([]model.Schedule, 0, len(masters)*e.opts.ScheduleDays)
	for i := 0; i < e.opts.ScheduleDays; i++ {
		day := from.AddDate(0, 0, i)
		if !slices.Contains(e.opts.WorkDays, day.Weekday()) {
			continue
		}
		for _, m := range masters {
			rows = append(rows, model.Schedule{
				MasterID:  m.ID,
				Day:       day,
				WorkStart: e.opts.WorkStart,
				WorkEnd:   e.opts.WorkEnd,
			})
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := e.repo.InsertSchedules(ctx, rows)
	if err != nil {
		e.logger.Error().Err(err).Msg("ensure schedules failed")
		return 0, err
	}
	e.logger.Info().Int("created", n).Time("from", from).Int("days", e.opts.ScheduleDays).Msg("schedules ensured")
	return n, nil
}

// EnsureSchedulesFromToday runs EnsureSchedules for the horizon starting today.
func (e *Engine) EnsureSchedulesFromToday(ctx context.Context) (int, error) {
	return e.EnsureSchedules(ctx, e.today())
}
