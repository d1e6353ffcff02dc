package showdown

import (
	"math"
	"time"
)

// Forever is the expiry of an output that never expires.
const Forever time.Duration = math.MaxInt64

// SendOptions controls when a queued output may be sent.
type SendOptions struct {
	// Delay is the minimum wait before the output may be sent.
	Delay time.Duration
	// ExpireAfter is the point, relative to enqueue time, after which the
	// output is discarded instead of sent.
	ExpireAfter time.Duration
	// StrictLength rejects over-long chat content instead of truncating it.
	StrictLength bool
}

// SendOption mutates SendOptions.
type SendOption func(*SendOptions)

// WithDelay holds the output back for at least d.
func WithDelay(d time.Duration) SendOption {
	return func(o *SendOptions) { o.Delay = d }
}

// WithExpiry discards the output if it could not be sent within d.
func WithExpiry(d time.Duration) SendOption {
	return func(o *SendOptions) { o.ExpireAfter = d }
}

// WithStrictLength makes Say and PrivateMessage fail on content longer than
// the configured limit.
func WithStrictLength() SendOption {
	return func(o *SendOptions) { o.StrictLength = true }
}

// ApplySendOptions resolves opts over the defaults (no delay, no expiry).
func ApplySendOptions(opts ...SendOption) SendOptions {
	o := SendOptions{ExpireAfter: Forever}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Validate checks the scheduling invariant delay < expiry, both non-negative.
func (o SendOptions) Validate() error {
	if o.Delay < 0 {
		return InvalidArgument(ErrMsgNegativeDelay)
	}
	if o.ExpireAfter < 0 {
		return InvalidArgument(ErrMsgNegativeExpiry)
	}
	if o.Delay >= o.ExpireAfter {
		return InvalidArgument("%s (delay %s, expiry %s)", ErrMsgDelayAfterExpiry, o.Delay, o.ExpireAfter)
	}
	return nil
}
