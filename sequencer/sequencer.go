// Package sequencer executes settlement calls one at a time and all or
// nothing: a call that fails leaves chain state and the registry exactly as
// they were, and events are only published after a call commits.
package sequencer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kaifufi/nftspace-settlement-go/chain"
	"github.com/kaifufi/nftspace-settlement-go/events"
	"github.com/kaifufi/nftspace-settlement-go/metrics"
	"github.com/kaifufi/nftspace-settlement-go/registry"
)

// Host is the chain state a call mutates.
type Host interface {
	Lock()
	Unlock()
	Now() uint64
	Snapshot() int
	RevertToSnapshot(id int)
	Finalise()
}

// Receipt describes a committed call.
type Receipt struct {
	ID     uuid.UUID      `json:"id"`
	Op     string         `json:"op"`
	Caller common.Address `json:"caller"`
	Events []events.Event `json:"events"`
}

// Call is the context of one executing call.
type Call struct {
	ctx      context.Context
	op       string
	caller   common.Address
	contract common.Address
	now      uint64
	tx       registry.Tx
	events   []events.Event
}

func (c *Call) Context() context.Context { return c.ctx }
func (c *Call) Op() string                { return c.op }
func (c *Call) Caller() common.Address    { return c.caller }
func (c *Call) Now() uint64               { return c.now }
func (c *Call) Tx() registry.Tx           { return c.tx }

// NewEvent starts an event attributed to the calling contract.
func (c *Call) NewEvent(typ events.Type) events.Event {
	return events.New(typ, c.contract, c.now)
}

// Emit buffers evt until the call commits.
func (c *Call) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithSink publishes committed events to sink.
func WithSink(sink events.Sink) Option {
	return func(s *Sequencer) { s.sink = sink }
}

// WithMetrics reports call outcomes to recorder.
func WithMetrics(recorder metrics.Recorder) Option {
	return func(s *Sequencer) { s.metrics = recorder }
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Sequencer) { s.logger = logger }
}

// Sequencer serializes the calls of one contract.
type Sequencer struct {
	contract common.Address
	host     Host
	store    registry.Store
	sink     events.Sink
	metrics  metrics.Recorder
	logger   *logrus.Logger
}

// New creates a sequencer for the contract at address.
func New(contract common.Address, host Host, store registry.Store, opts ...Option) *Sequencer {
	s := &Sequencer{
		contract: contract,
		host:     host,
		store:    store,
		metrics:  metrics.NewNoOpCollector(),
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the registry the sequencer writes to.
func (s *Sequencer) Store() registry.Store { return s.store }

// Host returns the chain state calls run against.
func (s *Sequencer) Host() Host { return s.host }

// Metrics returns the recorder calls report to.
func (s *Sequencer) Metrics() metrics.Recorder { return s.metrics }

// Run executes fn as one atomic call named op on behalf of caller.
func (s *Sequencer) Run(ctx context.Context, op string, caller common.Address, fn func(*Call) error) (receipt *Receipt, err error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.host.Lock()
	defer s.host.Unlock()

	logger := s.logger.WithFields(logrus.Fields{"op": op, "caller": caller.Hex()})
	defer func() {
		s.metrics.RecordCall(op, time.Since(start), err)
	}()

	snapshot := s.host.Snapshot()
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin registry transaction: %w", err)
	}

	call := &Call{
		ctx:      ctx,
		op:       op,
		caller:   caller,
		contract: s.contract,
		now:      s.host.Now(),
		tx:       tx,
	}

	abort := func() {
		s.host.RevertToSnapshot(snapshot)
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.WithError(rbErr).Error("Failed to roll back registry transaction")
		}
	}

	defer func() {
		if r := recover(); r != nil {
			abort()
			panic(r)
		}
	}()

	if err := fn(call); err != nil {
		abort()
		logger.WithFields(logrus.Fields{
			"error":    err.Error(),
			"category": chain.CategoryOf(err).String(),
		}).Warn("Call reverted")
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		abort()
		logger.WithError(err).Error("Failed to commit registry transaction")
		return nil, fmt.Errorf("commit registry transaction: %w", err)
	}
	s.host.Finalise()

	receipt = &Receipt{ID: uuid.New(), Op: op, Caller: caller, Events: call.events}
	if s.sink != nil {
		for _, evt := range call.events {
			s.sink.Publish(evt)
		}
	}
	logger.WithFields(logrus.Fields{
		"receipt": receipt.ID.String(),
		"events":  len(call.events),
	}).Debug("Call committed")
	return receipt, nil
}
