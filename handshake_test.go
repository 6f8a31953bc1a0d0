package warren

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shhac/warren/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionStatusString(t *testing.T) {
	assert.Equal(t, "NotConnected", StatusNotConnected.String())
	assert.Equal(t, "Connecting", StatusConnecting.String())
	assert.Equal(t, "Connected", StatusConnected.String())
	assert.Equal(t, "Unimplemented", StatusUnimplemented.String())
	assert.Equal(t, "Failed", StatusFailed.String())
	assert.Equal(t, "Unknown", ConnectionStatus(99).String())
}

func TestRequireCapabilityConnected(t *testing.T) {
	addr := startEchoServer(t, nil)
	c := buildTestClient(t, Config{Address: addr, Timeout: 3 * time.Second})

	// Connected passes without touching the fallback.
	err := c.requireCapability(context.Background(), "", func(context.Context) error {
		t.Fatal("fallback must not run when connected")
		return nil
	})
	require.NoError(t, err)
}

func TestRequireCapabilityUnimplementedDefaultMessage(t *testing.T) {
	addr := startUnimplementedServer(t)
	c := buildTestClient(t, Config{Address: addr, Timeout: 3 * time.Second})

	err := c.requireCapability(context.Background(), "", nil)
	require.Error(t, err)
	assert.True(t, errs.IsIncompatible(err))
	assert.Contains(t, err.Error(), "versions are mismatched")
}

func TestRequireCapabilityUnimplementedCustomMessage(t *testing.T) {
	addr := startUnimplementedServer(t)
	c := buildTestClient(t, Config{Address: addr, Timeout: 3 * time.Second})

	err := c.requireCapability(context.Background(), "resource groups need server 2.1+", nil)
	require.Error(t, err)
	assert.True(t, errs.IsIncompatible(err))
	assert.Contains(t, err.Error(), "resource groups need server 2.1+")
}

func TestRequireCapabilityFallback(t *testing.T) {
	addr := startUnimplementedServer(t)
	c := buildTestClient(t, Config{Address: addr, Timeout: 3 * time.Second})

	fallbackErr := errors.New("legacy path taken")
	err := c.requireCapability(context.Background(), "", func(context.Context) error {
		return fallbackErr
	})
	// The fallback's result is returned as-is; no incompatibility error.
	assert.Equal(t, fallbackErr, err)

	ran := false
	err = c.requireCapability(context.Background(), "", func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestRequireCapabilityFailedPropagatesConnectivity(t *testing.T) {
	c := buildTestClient(t, Config{Address: "127.0.0.1:1", Timeout: 3 * time.Second})

	err := c.requireCapability(context.Background(), "custom message", nil)
	require.Error(t, err)
	// A connection failure is a distinguishable kind: never reported as
	// an incompatibility, and the fallback never runs.
	assert.True(t, errs.IsConnectivity(err))
	assert.False(t, errs.IsIncompatible(err))
}

func TestUseDatabaseGated(t *testing.T) {
	addr := startUnimplementedServer(t)
	c := buildTestClient(t, Config{Address: addr, Timeout: 3 * time.Second})

	err := c.UseDatabase(context.Background(), "analytics")
	require.Error(t, err)
	assert.True(t, errs.IsIncompatible(err))
	assert.Empty(t, c.dbName(), "scope unchanged on failure")
}

func TestUseDatabaseConnected(t *testing.T) {
	addr := startEchoServer(t, nil)
	c := buildTestClient(t, Config{Address: addr, Timeout: 3 * time.Second})

	require.NoError(t, c.UseDatabase(context.Background(), "analytics"))
	assert.Equal(t, "analytics", c.dbName())
}

func TestHandshakeTimeoutSettlesAsFailed(t *testing.T) {
	// A blackholed address (RFC 5737 TEST-NET) makes the probe hang
	// until the configured timeout marks the attempt Failed; the state
	// machine must not stay stuck in Connecting.
	c := buildTestClient(t, Config{Address: "192.0.2.1:19530", Timeout: 300 * time.Millisecond})

	start := time.Now()
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsConnectivity(err))
	assert.Equal(t, StatusFailed, c.Status())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestJoinerCancellationLeavesSharedAttempt(t *testing.T) {
	c := buildTestClient(t, Config{Address: "192.0.2.1:19530", Timeout: 500 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.ensureConnected(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The shared attempt keeps running and settles on its own timeout.
	st, _ := c.ensureConnected(context.Background())
	assert.Equal(t, StatusFailed, st)
}
