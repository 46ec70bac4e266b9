package session

import (
	"context"
	"sync"
	"sync/atomic"

	"solmate-cli/metrics"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// ConnState is the last known reachability of the RPC peer.
type ConnState int32

const (
	StateUnknown ConnState = iota
	StateConnected
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Prober is the liveness probe used by ConnectionState.
type Prober interface {
	LatestBlockhash(ctx context.Context) (*solana.Hash, error)
}

// ConnectionState tracks whether the peer is reachable. Writes are serialized;
// reads never block.
type ConnectionState struct {
	mu      sync.Mutex
	state   atomic.Int32
	probe   Prober
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewConnectionState(probe Prober, log *zap.Logger, m *metrics.Metrics) *ConnectionState {
	return &ConnectionState{probe: probe, log: log.Named("connection"), metrics: m}
}

// Refresh runs one liveness probe and overwrites the state with its result.
func (c *ConnectionState) Refresh(ctx context.Context) bool {
	hash, err := c.probe.LatestBlockhash(ctx)
	switch {
	case err != nil:
		c.set(StateDisconnected, zap.Error(err))
		return false
	case hash == nil:
		c.set(StateDisconnected, zap.String("reason", "empty blockhash response"))
		return false
	default:
		c.set(StateConnected)
		return true
	}
}

// IsConnected reports the last known state without any I/O.
func (c *ConnectionState) IsConnected() bool {
	return c.State() == StateConnected
}

func (c *ConnectionState) State() ConnState {
	return ConnState(c.state.Load())
}

// MarkDisconnected records a failure observed outside the liveness probe.
func (c *ConnectionState) MarkDisconnected(reason error) {
	c.set(StateDisconnected, zap.Error(reason))
}

func (c *ConnectionState) set(next ConnState, fields ...zap.Field) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := ConnState(c.state.Swap(int32(next)))
	c.metrics.SetConnected(next == StateConnected)
	if prev == next {
		return
	}
	fields = append(fields, zap.Stringer("from", prev), zap.Stringer("to", next))
	if next == StateConnected {
		c.log.Info("connection state changed", fields...)
	} else {
		c.log.Warn("connection state changed", fields...)
	}
}
