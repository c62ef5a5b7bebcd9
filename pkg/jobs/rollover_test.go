package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/workwork-1/projectbotsalon/pkg/utils/errs"
)

type countingEnsurer struct {
	calls atomic.Int32
	err   error
}

func (c *countingEnsurer) EnsureSchedulesFromToday(context.Context) (int, error) {
	c.calls.Add(1)
	return 10, c.err
}

func TestNewRollover_Spec(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"0 3 * * *", false},
		{"@daily", false},
		{"*/5 * * * *", false},
		{"every night", true},
		{"0 3 * *", true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			_, err := NewRollover(&countingEnsurer{}, tt.spec, zerolog.Nop())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errs.ErrValidation) {
				t.Errorf("expected validation kind, got %v", err)
			}
		})
	}
}

func TestRollover_StartRunsImmediately(t *testing.T) {
	e := &countingEnsurer{}
	r, err := NewRollover(e, "0 3 * * *", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r.Start(ctx)
	if got := e.calls.Load(); got != 1 {
		t.Fatalf("expected one run at start, got %d", got)
	}

	r.tick()
	if got := e.calls.Load(); got != 2 {
		t.Fatalf("expected tick to run the job, got %d", got)
	}
}

func TestRollover_RunOnceError(t *testing.T) {
	e := &countingEnsurer{err: errs.New("db down").Kind(errs.ErrStore)}
	r, _ := NewRollover(e, "@daily", zerolog.Nop())
	if _, err := r.RunOnce(context.Background()); !errors.Is(err, errs.ErrStore) {
		t.Fatalf("expected store error, got %v", err)
	}
}
