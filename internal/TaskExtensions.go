package internal

import (
	"context"
	"fmt"
	"time"
)

// ActionRetryTaskCallback represents a callback function that performs one attempt of a task
type ActionRetryTaskCallback[T any] func(ctx context.Context) (T, error)

// ActionOnRetry represents a callback function invoked after a failed attempt
type ActionOnRetry func(retryAttemptCount, retryAttemptTotal int, err error)

// ActionShouldRetry decides whether a failed attempt is worth repeating
type ActionShouldRetry func(err error) bool

// DefaultRetryAttempt is the default number of attempts
const DefaultRetryAttempt = 5

// DefaultRetryDelay is the default pause between attempts
const DefaultRetryDelay = time.Second

// WaitForRetry runs callback up to retryAttempt times, sleeping retryDelay between attempts.
// Errors rejected by shouldRetry (when set) are returned immediately.
func WaitForRetry[T any](
	ctx context.Context,
	callback ActionRetryTaskCallback[T],
	retryAttempt int,
	retryDelay time.Duration,
	shouldRetry ActionShouldRetry,
	actionOnRetry ActionOnRetry,
) (T, error) {
	var zero T

	if retryAttempt <= 0 {
		retryAttempt = DefaultRetryAttempt
	}
	if retryDelay < 0 {
		retryDelay = DefaultRetryDelay
	}

	var lastError error
	for retryAttemptCurrent := 1; retryAttemptCurrent <= retryAttempt; retryAttemptCurrent++ {
		result, err := callback(ctx)
		if err == nil {
			return result, nil
		}

		// Check if the context was canceled
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		lastError = err
		if shouldRetry != nil && !shouldRetry(err) {
			return zero, err
		}
		if retryAttemptCurrent == retryAttempt {
			break
		}

		PushLogWarningf(nil, "The operation has failed! Retrying attempt left: %d/%d\n%v",
			retryAttemptCurrent, retryAttempt, err)
		if actionOnRetry != nil {
			actionOnRetry(retryAttemptCurrent, retryAttempt, err)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(retryDelay):
		}
	}

	return zero, fmt.Errorf("the operation has failed after %d attempts: %w", retryAttempt, lastError)
}
