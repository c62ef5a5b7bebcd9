// Package jobs runs periodic maintenance of the booking calendar.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/workwork-1/projectbotsalon/pkg/utils/errs"
)

// ScheduleEnsurer creates missing working-day schedules for the rolling horizon.
type ScheduleEnsurer interface {
	EnsureSchedulesFromToday(ctx context.Context) (int, error)
}

// Rollover keeps the schedule horizon rolling forward.
type Rollover struct {
	engine ScheduleEnsurer
	logger zerolog.Logger
	cron   *cron.Cron
	spec   string
}

func NewRollover(engine ScheduleEnsurer, spec string, logger zerolog.Logger) (*Rollover, error) {
	r := &Rollover{
		engine: engine,
		logger: logger.With().Str("component", "rollover").Logger(),
		cron:   cron.New(),
		spec:   spec,
	}
	if _, err := r.cron.AddFunc(spec, r.tick); err != nil {
		return nil, errs.New("invalid rollover cron spec").Arg("spec", spec).Kind(errs.ErrValidation).Wrap(err)
	}
	return r, nil
}

// RunOnce extends the horizon immediately.
func (r *Rollover) RunOnce(ctx context.Context) (int, error) {
	n, err := r.engine.EnsureSchedulesFromToday(ctx)
	if err != nil {
		return 0, err
	}
	r.logger.Info().Int("created", n).Msg("schedule horizon extended")
	return n, nil
}

// Start runs the job once and then on the cron schedule until ctx is done.
func (r *Rollover) Start(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error().Err(err).Msg("initial rollover failed")
	}
	r.cron.Start()
	r.logger.Info().Str("spec", r.spec).Msg("rollover scheduler started")

	go func() {
		<-ctx.Done()
		<-r.cron.Stop().Done()
		r.logger.Info().Msg("rollover scheduler stopped")
	}()
}

func (r *Rollover) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error().Err(err).Msg("rollover failed")
	}
}
