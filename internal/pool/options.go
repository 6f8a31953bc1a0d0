package pool

import (
	"math"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"
)

// Built-in channel defaults. User options merge over these.
const (
	defaultMaxMsgSize       = math.MaxInt32
	defaultKeepaliveTime    = 10 * time.Second
	defaultKeepaliveTimeout = 3 * time.Second
)

// defaultServiceConfig enables transport-level retry for transient
// server unavailability. The pool itself never retries.
const defaultServiceConfig = `{
	"methodConfig": [{
		"name": [{"service": "warren.v1.WarrenService"}],
		"retryPolicy": {
			"maxAttempts": 3,
			"initialBackoff": "0.1s",
			"maxBackoff": "1s",
			"backoffMultiplier": 2,
			"retryableStatusCodes": ["UNAVAILABLE"]
		}
	}]
}`

// ChannelOptions tunes the channels the pool creates. The zero value
// selects the built-in defaults: unlimited message sizes, periodic
// keepalive pings permitted without active calls, and retry enabled.
type ChannelOptions struct {
	MaxSendMsgSize int
	MaxRecvMsgSize int

	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration

	// DisableKeepalivePermitWithoutStream stops keepalive pings on idle
	// channels. Off by default so pooled idle channels stay warm.
	DisableKeepalivePermitWithoutStream bool

	// DisableRetry turns off the transport-level retry policy.
	DisableRetry bool

	// Extra dial options are appended after the merged defaults, so a
	// caller can override anything above.
	Extra []grpc.DialOption
}

// dialOptions merges the user options over the defaults and binds the
// transport credentials.
func (o ChannelOptions) dialOptions(tc credentials.TransportCredentials) []grpc.DialOption {
	sendMax := o.MaxSendMsgSize
	if sendMax == 0 {
		sendMax = defaultMaxMsgSize
	}
	recvMax := o.MaxRecvMsgSize
	if recvMax == 0 {
		recvMax = defaultMaxMsgSize
	}
	kaTime := o.KeepaliveTime
	if kaTime == 0 {
		kaTime = defaultKeepaliveTime
	}
	kaTimeout := o.KeepaliveTimeout
	if kaTimeout == 0 {
		kaTimeout = defaultKeepaliveTimeout
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(tc),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallSendMsgSize(sendMax),
			grpc.MaxCallRecvMsgSize(recvMax),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                kaTime,
			Timeout:             kaTimeout,
			PermitWithoutStream: !o.DisableKeepalivePermitWithoutStream,
		}),
	}
	if !o.DisableRetry {
		opts = append(opts, grpc.WithDefaultServiceConfig(defaultServiceConfig))
	}
	return append(opts, o.Extra...)
}
