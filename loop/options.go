package loop

import (
	"errors"

	"github.com/joeycumines/logiface"
)

// loopOptions holds configuration resolved by New.
type loopOptions struct {
	ingressCapacity int
	logger          *logiface.Logger[logiface.Event]
}

// Option configures a Loop instance.
type Option interface {
	apply(*loopOptions) error
}

type optionImpl struct {
	applyFunc func(*loopOptions) error
}

func (o *optionImpl) apply(opts *loopOptions) error { return o.applyFunc(opts) }

// WithIngressCapacity sets the submitted-task buffer size. Submit
// reports ErrOverloaded once the buffer is full. Defaults to 256.
func WithIngressCapacity(n int) Option {
	return &optionImpl{func(opts *loopOptions) error {
		if n < 1 {
			return errors.New("loop: ingress capacity must be >= 1")
		}
		opts.ingressCapacity = n
		return nil
	}}
}

// WithLogger attaches a structured logger used for lifecycle and
// panic events. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

func resolveOptions(opts []Option) (*loopOptions, error) {
	cfg := &loopOptions{ingressCapacity: 256}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
