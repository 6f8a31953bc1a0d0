// Package pool manages a bounded pool of live gRPC channels to a single
// address/credential pair. Channels are expensive to set up; the pool
// amortizes that cost across many short-lived calls and provides
// backpressure when the server or network is saturated.
package pool

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
	"github.com/shhac/warren/internal/errs"
	"github.com/sony/gobreaker/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// DefaultMaxChannels bounds the pool when the configuration does not.
const DefaultMaxChannels = 10

// Config describes a channel pool.
type Config struct {
	// Address is the dialable host:port target.
	Address string

	// Credentials is the resolver's output; the pool's channel factory
	// is its only consumer.
	Credentials credentials.TransportCredentials

	// MaxChannels bounds the pool. Zero means DefaultMaxChannels.
	MaxChannels int32

	// Options tune each created channel.
	Options ChannelOptions

	// EnableBreaker wraps channel creation in a circuit breaker so
	// repeated dial failures fail fast instead of piling up.
	EnableBreaker bool

	Logger *slog.Logger
}

// Channel is one live pooled channel, held by exactly one caller between
// Acquire and Release. Callers never retain it past one request.
type Channel struct {
	res *puddle.Resource[*grpc.ClientConn]
}

// Conn returns the underlying gRPC channel.
func (c *Channel) Conn() *grpc.ClientConn {
	return c.res.Value()
}

// ChannelPool owns the channels. Acquire may suspend at capacity until a
// channel is released; Release with valid=false destroys the channel so
// no later caller can observe a broken one.
type ChannelPool struct {
	pool    *puddle.Pool[*grpc.ClientConn]
	address string
	logger  *slog.Logger

	created   atomic.Int64
	destroyed atomic.Int64
}

// New creates the pool. No channel is dialed until the first Acquire.
func New(cfg Config) (*ChannelPool, error) {
	maxSize := cfg.MaxChannels
	if maxSize == 0 {
		maxSize = DefaultMaxChannels
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &ChannelPool{
		address: cfg.Address,
		logger:  logger,
	}

	dialOpts := cfg.Options.dialOptions(cfg.Credentials)
	create := func(ctx context.Context) (*grpc.ClientConn, error) {
		conn, err := grpc.NewClient(cfg.Address, dialOpts...)
		if err != nil {
			logger.Error("channel creation failed",
				slog.String("address", cfg.Address),
				slog.Any("error", err),
			)
			return nil, errs.Connectivity(cfg.Address, err)
		}
		p.created.Add(1)
		logger.Debug("channel created", slog.String("address", cfg.Address))
		return conn, nil
	}

	if cfg.EnableBreaker {
		cb := gobreaker.NewCircuitBreaker[*grpc.ClientConn](gobreaker.Settings{
			Name:    "warren-channel-factory",
			Timeout: 5 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
		inner := create
		create = func(ctx context.Context) (*grpc.ClientConn, error) {
			conn, err := cb.Execute(func() (*grpc.ClientConn, error) {
				return inner(ctx)
			})
			if err != nil && !errs.IsConnectivity(err) {
				return nil, errs.Connectivity(cfg.Address, err)
			}
			return conn, err
		}
	}

	pp, err := puddle.NewPool(&puddle.Config[*grpc.ClientConn]{
		Constructor: create,
		Destructor: func(conn *grpc.ClientConn) {
			p.destroyed.Add(1)
			if err := conn.Close(); err != nil {
				logger.Warn("failed to close channel", slog.Any("error", err))
			}
		},
		MaxSize: maxSize,
	})
	if err != nil {
		return nil, errs.Config("pool", err)
	}
	p.pool = pp
	return p, nil
}

// Acquire returns an idle channel, creates one when under the bound, or
// suspends until a channel is released. Creation failures surface as
// connectivity errors; the pool does not retry them.
func (p *ChannelPool) Acquire(ctx context.Context) (*Channel, error) {
	res, err := p.pool.Acquire(ctx)
	if err != nil {
		if errors.Is(err, puddle.ErrClosedPool) {
			return nil, errs.ErrPoolClosed
		}
		if errs.IsConnectivity(err) || errs.IsConfig(err) {
			return nil, err
		}
		return nil, errs.Connectivity(p.address, err)
	}
	return &Channel{res: res}, nil
}

// Release returns ch to the idle set when valid, or destroys it so a
// replacement can be created on demand. A channel that errored during
// use must come back with valid=false; no later caller may observe it.
func (p *ChannelPool) Release(ch *Channel, valid bool) {
	if ch == nil || ch.res == nil {
		return
	}
	res := ch.res
	ch.res = nil
	if valid {
		res.Release()
		return
	}
	p.logger.Debug("discarding broken channel", slog.String("address", p.address))
	res.Destroy()
}

// Close destroys all idle channels and waits for acquired ones to be
// released or destroyed.
func (p *ChannelPool) Close() {
	p.pool.Close()
}

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	TotalChannels     int32
	IdleChannels      int32
	AcquiredChannels  int32
	AcquireCount      int64
	EmptyAcquireCount int64
	CreatedChannels   int64
	DestroyedChannels int64
}

// Stats returns a snapshot of pool statistics.
func (p *ChannelPool) Stats() Stats {
	s := p.pool.Stat()
	return Stats{
		TotalChannels:     s.TotalResources(),
		IdleChannels:      s.IdleResources(),
		AcquiredChannels:  s.AcquiredResources(),
		AcquireCount:      s.AcquireCount(),
		EmptyAcquireCount: s.EmptyAcquireCount(),
		CreatedChannels:   p.created.Load(),
		DestroyedChannels: p.destroyed.Load(),
	}
}
