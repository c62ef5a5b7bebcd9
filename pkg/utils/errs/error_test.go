package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestCustomError_Is(t *testing.T) {
	cause := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		kind error
		want bool
	}{
		{"not found helper", NotFound("service", 7), ErrNotFound, true},
		{"validation helper", Validation("bad date"), ErrValidation, true},
		{"store keeps cause", Store("insert booking", cause), cause, true},
		{"store kind", Store("insert booking", cause), ErrStore, true},
		{"kind mismatch", NotFound("master", 1), ErrConflict, false},
		{"wrapped by fmt", fmt.Errorf("create: %w", New("taken").Kind(ErrConflict)), ErrConflict, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.kind); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v (err: %v)", got, tt.want, tt.err)
			}
		})
	}
}

func TestCustomError_String(t *testing.T) {
	inner := New("inner").Arg("id", 3)
	err := New("outer").Kind(ErrConflict).Wrap(inner)

	want := "{msg: outer, kind: conflict, wrappedError: {msg: inner, args: map[id:3]}}"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	plain := New("outer").Wrap(errors.New("boom"))
	if got := plain.Error(); got != "{msg: outer, wrappedError: {boom}}" {
		t.Errorf("Error() = %q", got)
	}
}

func TestCustomError_As(t *testing.T) {
	err := fmt.Errorf("ctx: %w", NotFound("booking", 42))

	var ce *CustomError
	if !errors.As(err, &ce) {
		t.Fatal("expected errors.As to find CustomError")
	}
	if ce.args["booking_id"] != int64(42) {
		t.Errorf("booking_id arg = %v", ce.args["booking_id"])
	}
}
