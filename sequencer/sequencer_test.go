package sequencer

import (
	"context"
	"errors"
	"io"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaifufi/nftspace-settlement-go/chain"
	"github.com/kaifufi/nftspace-settlement-go/events"
	"github.com/kaifufi/nftspace-settlement-go/ledger"
	"github.com/kaifufi/nftspace-settlement-go/metrics"
	"github.com/kaifufi/nftspace-settlement-go/registry"
)

var (
	contract = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	sigHash  = common.HexToHash("0x01")
)

type fixture struct {
	world    *ledger.World
	store    *registry.MemoryStore
	recorder *events.Recorder
	seq      *Sequencer
}

func newFixture() *fixture {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		world:    ledger.NewWorld(big.NewInt(1), 100),
		store:    registry.NewMemoryStore(),
		recorder: &events.Recorder{},
	}
	f.seq = New(contract, f.world, f.store,
		WithSink(f.recorder),
		WithLogger(logger),
		WithMetrics(metrics.NewCollector("test")),
	)
	return f
}

func TestRunCommits(t *testing.T) {
	f := newFixture()
	f.world.Fund(alice, big.NewInt(10))

	receipt, err := f.seq.Run(context.Background(), "pay", alice, func(c *Call) error {
		assert.Equal(t, uint64(100), c.Now())
		assert.Equal(t, alice, c.Caller())
		if err := f.world.TransferNative(alice, bob, big.NewInt(10)); err != nil {
			return err
		}
		if err := registry.Cancel(c.Context(), c.Tx(), sigHash); err != nil {
			return err
		}
		c.Emit(c.NewEvent(events.OrderCancelled).With("sig_hash", sigHash))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "pay", receipt.Op)
	require.Len(t, receipt.Events, 1)
	assert.Equal(t, contract, receipt.Events[0].Contract)
	assert.Equal(t, receipt.Events, f.recorder.Events())

	cancelled, _ := f.store.IsCancelled(context.Background(), sigHash)
	assert.True(t, cancelled)
	assert.Equal(t, int64(10), f.world.Balance(bob).Int64())
}

func TestRunRevertsEverythingOnError(t *testing.T) {
	f := newFixture()
	f.world.Fund(alice, big.NewInt(10))

	_, err := f.seq.Run(context.Background(), "pay", alice, func(c *Call) error {
		require.NoError(t, f.world.TransferNative(alice, bob, big.NewInt(10)))
		require.NoError(t, registry.Cancel(c.Context(), c.Tx(), sigHash))
		c.Emit(c.NewEvent(events.SettlementCompleted))
		return chain.ErrInsufficientFunds
	})
	assert.ErrorIs(t, err, chain.ErrInsufficientFunds)

	assert.Equal(t, int64(10), f.world.Balance(alice).Int64())
	assert.Equal(t, int64(0), f.world.Balance(bob).Int64())
	cancelled, _ := f.store.IsCancelled(context.Background(), sigHash)
	assert.False(t, cancelled)
	assert.Empty(t, f.recorder.Events())
}

func TestRunRevertsOnPanic(t *testing.T) {
	f := newFixture()
	f.world.Fund(alice, big.NewInt(10))

	assert.Panics(t, func() {
		_, _ = f.seq.Run(context.Background(), "pay", alice, func(c *Call) error {
			_ = f.world.TransferNative(alice, bob, big.NewInt(10))
			panic("boom")
		})
	})
	assert.Equal(t, int64(10), f.world.Balance(alice).Int64())

	// the host lock was released
	_, err := f.seq.Run(context.Background(), "noop", alice, func(*Call) error { return nil })
	assert.NoError(t, err)
}

func TestRunCancelledContext(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := f.seq.Run(ctx, "noop", alice, func(*Call) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

type failingStore struct {
	*registry.MemoryStore
	beginErr  error
	commitErr error
}

func (s failingStore) Begin(ctx context.Context) (registry.Tx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	tx, err := s.MemoryStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return failingTx{Tx: tx, commitErr: s.commitErr}, nil
}

type failingTx struct {
	registry.Tx
	commitErr error
}

func (tx failingTx) Commit() error {
	if tx.commitErr != nil {
		return tx.commitErr
	}
	return tx.Tx.Commit()
}

func TestRunCommitFailureRevertsHost(t *testing.T) {
	world := ledger.NewWorld(big.NewInt(1), 100)
	world.Fund(alice, big.NewInt(10))
	dbErr := errors.New("connection reset")
	recorder := &events.Recorder{}
	seq := New(contract, world, failingStore{MemoryStore: registry.NewMemoryStore(), commitErr: dbErr}, WithSink(recorder))

	_, err := seq.Run(context.Background(), "pay", alice, func(c *Call) error {
		c.Emit(c.NewEvent(events.SettlementCompleted))
		return world.TransferNative(alice, bob, big.NewInt(10))
	})
	assert.ErrorIs(t, err, dbErr)
	assert.Equal(t, int64(10), world.Balance(alice).Int64())
	assert.Empty(t, recorder.Events())
}

func TestRunBeginFailure(t *testing.T) {
	dbErr := errors.New("pool exhausted")
	seq := New(contract, ledger.NewWorld(big.NewInt(1), 100), failingStore{MemoryStore: registry.NewMemoryStore(), beginErr: dbErr})

	_, err := seq.Run(context.Background(), "noop", alice, func(*Call) error { return nil })
	assert.ErrorIs(t, err, dbErr)
}
