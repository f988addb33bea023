package alerting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// StatusError is a non-2xx response from a delivery endpoint.
type StatusError struct {
	Channel string
	Code    int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s 响应码异常: %d", e.Channel, e.Code)
}

// Temporary reports whether retrying may help.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

func statusError(channel string, code int) error {
	return &StatusError{Channel: channel, Code: code}
}

// RetryOptions bound redelivery attempts.
type RetryOptions struct {
	MaxRetries uint64
	Base       time.Duration
}

// RetryNotifier retries transient delivery failures with exponential backoff.
type RetryNotifier struct {
	next   Notifier
	opts   RetryOptions
	logger zerolog.Logger
}

// NewRetryNotifier wraps next.
func NewRetryNotifier(next Notifier, opts RetryOptions, logger zerolog.Logger) *RetryNotifier {
	if opts.Base <= 0 {
		opts.Base = 500 * time.Millisecond
	}
	return &RetryNotifier{
		next:   next,
		opts:   opts,
		logger: logger.With().Str("component", "alert_retry").Logger(),
	}
}

func (r *RetryNotifier) Notify(ctx context.Context, msg Message) error {
	backoff := retry.WithMaxRetries(r.opts.MaxRetries, retry.NewExponential(r.opts.Base))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := r.next.Notify(ctx, msg)
		if err == nil {
			return nil
		}

		var status *StatusError
		if errors.As(err, &status) && !status.Temporary() {
			return err
		}
		r.logger.Warn().Err(err).Int("attempt", attempt).Msg("delivery failed, retrying")
		return retry.RetryableError(err)
	})
}

var _ Notifier = (*RetryNotifier)(nil)
