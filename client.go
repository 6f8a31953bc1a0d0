package warren

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jhump/protoreflect/dynamic"
	"github.com/jhump/protoreflect/dynamic/grpcdynamic"
	"github.com/shhac/warren/internal/creds"
	"github.com/shhac/warren/internal/errs"
	"github.com/shhac/warren/internal/logging"
	"github.com/shhac/warren/internal/pool"
	"github.com/shhac/warren/internal/schema"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// sdkVersion is reported to the server in the handshake payload.
const sdkVersion = "0.1.0"

// Metadata header names attached to outgoing calls.
const (
	authorizationHeader = "authorization"
	databaseHeader      = "dbname"
	identifierHeader    = "identifier"
)

// Client is a pooled gRPC client for one Warren endpoint. It is safe for
// concurrent use.
type Client struct {
	address    string // dialable host:port, scheme stripped
	mode       creds.Mode
	types      *schema.Types
	pool       *pool.ChannelPool
	logger     *slog.Logger
	timeout    time.Duration
	identifier string
	username   string

	metaMu   sync.RWMutex
	metadata map[string]string

	// Connection state machine; see handshake.go.
	stateMu    sync.Mutex
	status     ConnectionStatus
	connectErr error
	handshakes singleflight.Group
}

// Build constructs a client from cfg. Validation runs before any file
// I/O; certificate reads and schema compilation run here so a returned
// client is always fully initialized. No network I/O happens until the
// first call.
func Build(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	mode, tc, err := creds.Resolve(cfg.Address, cfg.TLS, cfg.Secure)
	if err != nil {
		return nil, err
	}

	types, err := schema.Load(cfg.schemaPaths())
	if err != nil {
		return nil, err
	}

	host, _ := creds.ParseAddress(cfg.Address)

	chPool, err := pool.New(pool.Config{
		Address:       host,
		Credentials:   tc,
		MaxChannels:   cfg.MaxChannels,
		Options:       cfg.Channel,
		EnableBreaker: cfg.EnableBreaker,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	identifier := cfg.Identifier
	if identifier == "" {
		identifier = uuid.NewString()
	}

	c := &Client{
		address:    host,
		mode:       mode,
		types:      types,
		pool:       chPool,
		logger:     logger,
		timeout:    cfg.timeout(),
		identifier: identifier,
		username:   cfg.Username,
		metadata:   make(map[string]string),
		status:     StatusNotConnected,
	}

	if cfg.Username != "" || cfg.Password != "" {
		token := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		c.metadata[authorizationHeader] = token
	}
	if cfg.DBName != "" {
		c.metadata[databaseHeader] = cfg.DBName
	}

	logger.Debug("client built",
		slog.String("address", host),
		slog.String("security_mode", mode.String()),
	)
	return c, nil
}

// Close shuts the channel pool down and resets the connection state.
func (c *Client) Close() {
	c.pool.Close()
	c.Reset()
}

// SecurityMode reports the transport security tier selected at
// construction. It never changes for the client's lifetime.
func (c *Client) SecurityMode() creds.Mode {
	return c.mode
}

// PoolStats returns a snapshot of channel-pool activity.
func (c *Client) PoolStats() pool.Stats {
	return c.pool.Stats()
}

// SetMetadata attaches a header to every outgoing call.
func (c *Client) SetMetadata(key, value string) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	c.metadata[key] = value
}

// DeleteMetadata removes a global header.
func (c *Client) DeleteMetadata(key string) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	delete(c.metadata, key)
}

// outgoingMetadata merges per-call metadata over the global map.
func (c *Client) outgoingMetadata(extra metadata.MD) metadata.MD {
	c.metaMu.RLock()
	md := metadata.New(c.metadata)
	c.metaMu.RUnlock()
	return metadata.Join(md, extra)
}

// Call performs one RPC by method name: ensure the handshake has
// settled, acquire a channel, invoke, release. Per-call metadata merges
// over the global map. Wrappers decode the returned dynamic message.
func (c *Client) Call(ctx context.Context, method string, req *dynamic.Message, md metadata.MD) (*dynamic.Message, error) {
	if _, err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	resp, err := c.invoke(ctx, method, req, md)
	if err != nil {
		return nil, errs.ClassifyRPC(c.address, err)
	}
	return resp, nil
}

// invoke is the raw acquire → dynamic RPC → release path, shared by Call
// and the handshake probe. A failed call always releases its channel;
// transport-level failures release it as invalid so the pool discards it.
func (c *Client) invoke(ctx context.Context, method string, req *dynamic.Message, md metadata.MD) (*dynamic.Message, error) {
	m, ok := c.types.Method(method)
	if !ok {
		return nil, errs.Protocol(method, fmt.Errorf("method not defined in service schema"))
	}

	ch, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	ctx = metadata.NewOutgoingContext(ctx, c.outgoingMetadata(md))
	stub := grpcdynamic.NewStub(ch.Conn())

	c.logger.Debug("invoking RPC", slog.String("method", method))
	resp, err := stub.InvokeRpc(ctx, m, req)
	c.pool.Release(ch, channelStillValid(err))
	if err != nil {
		c.logger.Debug("RPC failed",
			slog.String("method", method),
			slog.Any("error", err),
		)
		if st, ok := status.FromError(err); ok {
			if details := errs.FormatStatusDetails(st); details != "" {
				c.logger.Debug("RPC error details",
					slog.String("method", method),
					slog.String("details", details),
				)
			}
		}
		return nil, err
	}

	dm, ok := resp.(*dynamic.Message)
	if !ok {
		return nil, errs.Protocol(method, fmt.Errorf("unexpected response message type %T", resp))
	}
	return dm, nil
}

// channelStillValid reports whether the channel that carried err may be
// reoffered to the next caller. Only transport-level faults poison a
// channel; server-side status codes leave it healthy.
func channelStillValid(err error) bool {
	if err == nil {
		return true
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	return st.Code() != codes.Unavailable
}

// newRequest builds an empty dynamic request message for method.
func (c *Client) newRequest(method string) (*dynamic.Message, error) {
	m, ok := c.types.Method(method)
	if !ok {
		return nil, errs.Protocol(method, fmt.Errorf("method not defined in service schema"))
	}
	return dynamic.NewMessage(m.GetInputType()), nil
}
