package notary

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/elciao/elciao/el-proxy/proxy/feed"
	"github.com/elciao/elciao/el-service/eth"
)

type BlockSource interface {
	VerifiedBlock(ctx context.Context, n uint64) (*eth.RPCBlock, error)
}

type Metrics interface {
	RecordNotaryDelivery(sink string, err error)
}

// Notarizer publishes a summary of every block accepted from a trust feed.
// Events are processed in the background: failures are logged and never affect the trust state.
type Notarizer struct {
	log     log.Logger
	m       Metrics
	src     BlockSource
	sink    Sink
	setup   SetupInfo
	chainID uint64

	queue     chan feed.Event
	setupDone bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewNotarizer(lgr log.Logger, m Metrics, src BlockSource, sink Sink, cfg Config, chainID uint64) *Notarizer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Notarizer{
		log:     lgr,
		m:       m,
		src:     src,
		sink:    sink,
		setup:   cfg.Setup,
		chainID: chainID,
		queue:   make(chan feed.Event, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Handle queues a feed event. Events are dropped while the queue is full.
func (n *Notarizer) Handle(ev feed.Event) {
	select {
	case n.queue <- ev:
	default:
		n.log.Warn("Notary queue is full, dropping block", "number", ev.Number, "hash", ev.Hash)
	}
}

func (n *Notarizer) Start() {
	n.wg.Add(1)
	go n.loop()
}

func (n *Notarizer) Stop(ctx context.Context) error {
	n.cancel()
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notarizer) loop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			return
		case ev := <-n.queue:
			n.process(ev)
		}
	}
}

func (n *Notarizer) process(ev feed.Event) {
	block, err := n.src.VerifiedBlock(n.ctx, ev.Number)
	if err != nil {
		n.log.Warn("Failed to get verified block to notarize", "number", ev.Number, "err", err)
		n.m.RecordNotaryDelivery(n.sink.Name(), err)
		return
	}
	if block.Hash != ev.Hash {
		n.log.Info("Skipping notarization of replaced block", "number", ev.Number, "hash", ev.Hash, "trusted", block.Hash)
		return
	}
	var setup *SetupInfo
	if !n.setupDone {
		setup = &n.setup
	}
	msg := NewMessage(NewSummary(block, ev.Beacon), setup, n.chainID)
	err = n.sink.Deliver(n.ctx, msg)
	n.m.RecordNotaryDelivery(n.sink.Name(), err)
	if err != nil {
		n.log.Warn("Failed to deliver notary message", "sink", n.sink.Name(), "id", msg.ID, "number", ev.Number, "err", err)
		return
	}
	n.setupDone = true
	n.log.Debug("Delivered notary message", "sink", n.sink.Name(), "id", msg.ID, "action", msg.Action, "number", ev.Number)
}
