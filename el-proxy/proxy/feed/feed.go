// Package feed delivers trusted block hashes to the trust store.
package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

// Event is one trusted block, as reported by a feed.
type Event struct {
	Feed   string
	Hash   common.Hash
	Number uint64
	// Beacon is the beacon block header that committed to the execution block, if the feed knows it.
	Beacon *BeaconHeader
}

type Handler func(ev Event)

// Feed reports trusted blocks until the context is done.
type Feed interface {
	Name() string
	Run(ctx context.Context, emit Handler) error
}

type Metrics interface {
	RecordFeedEvent(feed string, number uint64)
}

// Runner runs feeds in the background, and passes their events to the handlers, in order of registration.
type Runner struct {
	log      log.Logger
	m        Metrics
	feeds    []Feed
	handlers []Handler

	mu     sync.Mutex // serializes handler calls across feeds
	cancel context.CancelFunc
	group  *errgroup.Group
}

func NewRunner(lgr log.Logger, m Metrics, feeds []Feed, handlers ...Handler) *Runner {
	return &Runner{
		log:      lgr,
		m:        m,
		feeds:    feeds,
		handlers: handlers,
	}
}

func (r *Runner) dispatch(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m.RecordFeedEvent(ev.Feed, ev.Number)
	r.log.Debug("Trusted block from feed", "feed", ev.Feed, "number", ev.Number, "hash", ev.Hash)
	for _, h := range r.handlers {
		h(ev)
	}
}

func (r *Runner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.group, ctx = errgroup.WithContext(ctx)
	for _, f := range r.feeds {
		r.group.Go(func() error {
			r.log.Info("Starting trust feed", "feed", f.Name())
			err := f.Run(ctx, func(ev Event) {
				ev.Feed = f.Name()
				r.dispatch(ev)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				r.log.Error("Trust feed stopped", "feed", f.Name(), "err", err)
				return err
			}
			return nil
		})
	}
}

// Stop cancels the feeds and waits for them to return, or for ctx to be done.
func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel == nil {
		return nil
	}
	r.cancel()
	done := make(chan error, 1)
	go func() {
		done <- r.group.Wait()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
