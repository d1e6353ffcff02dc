package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/showdown/internal/protocol"
)

// Sender writes one encoded frame to the transport.
type Sender interface {
	Send(ctx context.Context, frame string) error
}

// Config tunes the pacing of a Scheduler.
type Config struct {
	// RequeueDelay is the pause after pushing a not-yet-ready item back.
	RequeueDelay time.Duration
	// PacePerLine is the pause after a send, per line of the sent payload.
	PacePerLine time.Duration
	Clock       Clock
	Logger      zerolog.Logger
}

// Scheduler drains a Queue onto a Sender one item at a time.
type Scheduler struct {
	queue  *Queue
	sender Sender
	cfg    Config
	log    zerolog.Logger
}

// New returns a Scheduler for queue writing to sender.
func New(queue *Queue, sender Sender, cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = queue.clock
	}
	return &Scheduler{
		queue:  queue,
		sender: sender,
		cfg:    cfg,
		log:    cfg.Logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run processes items until ctx is done or a send fails.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := s.Step(ctx); err != nil {
			return err
		}
	}
}

// Step handles exactly one item: it is either pushed back because it is not
// ready, discarded because it expired, or sent.
func (s *Scheduler) Step(ctx context.Context) error {
	item, err := s.queue.Pop(ctx)
	if err != nil {
		return err
	}
	if item.State() != Pending {
		return nil
	}

	now := s.cfg.Clock.Now()
	switch {
	case !item.ready(now):
		s.queue.push(item)
		return s.cfg.Clock.Sleep(ctx, s.cfg.RequeueDelay)

	case item.expired(now):
		if item.settle(Discarded) {
			s.log.Debug().
				Strs("payload", item.payload).
				Dur("late_by", now.Sub(item.expireAt)).
				Msg("output expired")
		}
		return nil
	}

	frame, err := protocol.EncodeFrame(item.payload)
	if err != nil {
		item.settle(Discarded)
		return fmt.Errorf("encode output: %w", err)
	}
	if err := s.sender.Send(ctx, frame); err != nil {
		item.settle(Discarded)
		return fmt.Errorf("send output: %w", err)
	}
	if !item.settle(Sent) {
		return nil
	}
	s.log.Debug().Msgf(">>> %s", frame)

	return s.cfg.Clock.Sleep(ctx, s.cfg.PacePerLine*time.Duration(len(item.payload)))
}
