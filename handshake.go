package warren

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/jhump/protoreflect/dynamic"
	"github.com/shhac/warren/internal/errs"
)

// handshakeMethod is the initial probe RPC. Servers that predate it
// answer Unimplemented, which is recorded as a degraded but working
// connection rather than a failure.
const handshakeMethod = "Connect"

// ConnectionStatus tracks the handshake state machine. NotConnected is
// the initial state; Connected, Unimplemented and Failed are stable
// until Reset.
type ConnectionStatus int

const (
	StatusNotConnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusUnimplemented
	StatusFailed
)

// String returns a human-readable representation of the connection status
func (s ConnectionStatus) String() string {
	switch s {
	case StatusNotConnected:
		return "NotConnected"
	case StatusConnecting:
		return "Connecting"
	case StatusConnected:
		return "Connected"
	case StatusUnimplemented:
		return "Unimplemented"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.status
}

// Reset re-arms the state machine so the next call issues a fresh
// handshake. Required to leave the stable Failed and Unimplemented
// states, e.g. after a server upgrade.
func (c *Client) Reset() {
	c.setStatus(StatusNotConnected, nil)
}

func (c *Client) setStatus(st ConnectionStatus, err error) {
	c.stateMu.Lock()
	c.status = st
	c.connectErr = err
	c.stateMu.Unlock()
	c.logger.Debug("connection state changed", slog.String("state", st.String()))
}

// ensureConnected awaits the current handshake or starts a new one.
// Concurrent callers join the same in-flight attempt and observe the
// identical outcome; exactly one probe RPC is issued per attempt. The
// returned error is nil for Connected and Unimplemented, the recorded
// connection failure for Failed, and the context error when the caller
// gives up waiting (the shared attempt itself keeps running).
func (c *Client) ensureConnected(ctx context.Context) (ConnectionStatus, error) {
	c.stateMu.Lock()
	st, connectErr := c.status, c.connectErr
	c.stateMu.Unlock()

	switch st {
	case StatusConnected, StatusUnimplemented:
		return st, nil
	case StatusFailed:
		return st, connectErr
	}

	ch := c.handshakes.DoChan("handshake", func() (any, error) {
		// Re-check under the lock: a previous flight may have settled
		// between the fast-path read and this call.
		c.stateMu.Lock()
		switch c.status {
		case StatusConnected, StatusUnimplemented:
			settled := c.status
			c.stateMu.Unlock()
			return settled, nil
		case StatusFailed:
			settled, err := c.status, c.connectErr
			c.stateMu.Unlock()
			return settled, err
		}
		c.status = StatusConnecting
		c.stateMu.Unlock()

		// The probe runs detached from any one caller so a cancelled
		// joiner cannot abort the shared attempt. Only the configured
		// timeout bounds it; on timeout the attempt settles as Failed
		// for every joiner instead of lingering in Connecting.
		hctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		err := c.handshake(hctx)
		switch {
		case err == nil:
			c.setStatus(StatusConnected, nil)
			return StatusConnected, nil
		case errs.IsUnimplemented(err):
			c.setStatus(StatusUnimplemented, nil)
			c.logger.Warn("server predates the handshake RPC; capability gating active",
				slog.String("address", c.address),
			)
			return StatusUnimplemented, nil
		default:
			cErr := errs.ClassifyRPC(c.address, err)
			c.setStatus(StatusFailed, cErr)
			return StatusFailed, cErr
		}
	})

	select {
	case res := <-ch:
		return res.Val.(ConnectionStatus), res.Err
	case <-ctx.Done():
		return StatusConnecting, ctx.Err()
	}
}

// handshake issues the Connect probe directly on the invoke path,
// bypassing ensureConnected.
func (c *Client) handshake(ctx context.Context) error {
	req, err := c.newRequest(handshakeMethod)
	if err != nil {
		return err
	}

	infoField := req.GetMessageDescriptor().FindFieldByName("client_info")
	info := dynamic.NewMessage(infoField.GetMessageType())
	host, _ := os.Hostname()
	fields := map[string]any{
		"sdk_type":    "warren-go",
		"sdk_version": sdkVersion,
		"local_time":  time.Now().Format(time.RFC3339),
		"user":        c.username,
		"host":        host,
		"client_id":   c.identifier,
	}
	for name, value := range fields {
		if err := info.TrySetFieldByName(name, value); err != nil {
			return errs.Protocol(handshakeMethod, err)
		}
	}
	if err := req.TrySetFieldByName("client_info", info); err != nil {
		return errs.Protocol(handshakeMethod, err)
	}

	resp, err := c.invoke(ctx, handshakeMethod, req, nil)
	if err != nil {
		return err
	}
	if err := checkStatus(resp); err != nil {
		return err
	}

	// The server hands back a session identifier scoping later calls.
	if v, err := resp.TryGetFieldByName("identifier"); err == nil {
		if id, ok := v.(int64); ok && id != 0 {
			c.SetMetadata(identifierHeader, strconv.FormatInt(id, 10))
		}
	}

	c.logger.Info("connected",
		slog.String("address", c.address),
		slog.String("security_mode", c.mode.String()),
	)
	return nil
}

// requireCapability gates version-sensitive operations. Connected passes;
// Unimplemented invokes the fallback when given, otherwise fails with an
// incompatibility error carrying msg (or a default explaining the
// version mismatch); Failed propagates the underlying connection error,
// which is a distinguishable failure kind.
func (c *Client) requireCapability(ctx context.Context, msg string, fallback func(context.Context) error) error {
	st, err := c.ensureConnected(ctx)
	switch st {
	case StatusConnected:
		return nil
	case StatusUnimplemented:
		if fallback != nil {
			return fallback(ctx)
		}
		return errs.Incompatible(msg)
	default:
		return err
	}
}
