package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type raceResult[T any] struct {
	value T
	err   error
}

// race runs fn against its own deadline. When the deadline wins, the
// goroutine is left to finish on its own and its result lands in a buffered
// channel nobody reads. Panics inside fn come back as errors.
func race[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan raceResult[T], 1)
	go func() {
		var res raceResult[T]
		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("backend panic: %v", r)
			}
			done <- res
		}()
		res.value, res.err = fn(stageCtx)
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			var zero T
			return zero, ErrStageTimeout
		}
		return res.value, res.err
	case <-stageCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, ErrStageTimeout
	}
}

// classify turns a raw invocation error into a StageError.
func classify(stage StageName, attempt int, err error) *StageError {
	switch {
	case errors.Is(err, ErrStageTimeout):
		return NewStageError(stage, ErrStageTimeout, attempt, nil)
	case errors.Is(err, ErrStageInvalidOutput):
		var se *StageError
		if errors.As(err, &se) {
			return se
		}
		return NewStageError(stage, ErrStageInvalidOutput, attempt, err)
	default:
		return NewStageError(stage, ErrStageProvider, attempt, err)
	}
}
