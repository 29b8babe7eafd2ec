package feed

import (
	"context"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

type HeaderClient interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// ExecutionPoller trusts the latest header of an execution layer node.
type ExecutionPoller struct {
	log      log.Logger
	client   HeaderClient
	interval time.Duration
	last     common.Hash
}

func NewExecutionPoller(lgr log.Logger, client HeaderClient, interval time.Duration) *ExecutionPoller {
	return &ExecutionPoller{log: lgr, client: client, interval: interval}
}

func (p *ExecutionPoller) Name() string {
	return "execution"
}

func (p *ExecutionPoller) Run(ctx context.Context, emit Handler) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		p.poll(ctx, emit)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *ExecutionPoller) poll(ctx context.Context, emit Handler) {
	head, err := p.client.HeaderByNumber(ctx, nil)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("Failed to poll latest header", "err", err)
		}
		return
	}
	hash := head.Hash()
	if hash == p.last {
		return
	}
	p.last = hash
	emit(Event{Hash: hash, Number: head.Number.Uint64()})
}

type HeadSubscriber interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// ExecutionSubscriber trusts the new heads pushed by an execution layer node. It resubscribes on errors.
type ExecutionSubscriber struct {
	log    log.Logger
	client HeadSubscriber
	// newBackOff configures the resubscription schedule.
	newBackOff func() backoff.BackOff
}

func NewExecutionSubscriber(lgr log.Logger, client HeadSubscriber) *ExecutionSubscriber {
	return &ExecutionSubscriber{
		log:    lgr,
		client: client,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

func (s *ExecutionSubscriber) Name() string {
	return "execution-ws"
}

func (s *ExecutionSubscriber) subscribe(ctx context.Context, heads chan<- *types.Header) (ethereum.Subscription, error) {
	return backoff.RetryNotifyWithData(func() (ethereum.Subscription, error) {
		return s.client.SubscribeNewHead(ctx, heads)
	}, backoff.WithContext(s.newBackOff(), ctx), func(err error, next time.Duration) {
		s.log.Warn("Failed to subscribe to new heads", "err", err, "retry_in", next)
	})
}

func (s *ExecutionSubscriber) Run(ctx context.Context, emit Handler) error {
	heads := make(chan *types.Header, 16)
	for {
		sub, err := s.subscribe(ctx, heads)
		if err != nil {
			return err
		}
		s.log.Info("Subscribed to new heads")
	recv:
		for {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
				return ctx.Err()
			case err := <-sub.Err():
				s.log.Warn("Head subscription failed, resubscribing", "err", err)
				sub.Unsubscribe()
				break recv
			case head := <-heads:
				emit(Event{Hash: head.Hash(), Number: head.Number.Uint64()})
			}
		}
	}
}
