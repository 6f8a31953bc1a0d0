package warren

import (
	"log/slog"
	"time"

	"github.com/shhac/warren/internal/creds"
	"github.com/shhac/warren/internal/errs"
	"github.com/shhac/warren/internal/pool"
	"github.com/shhac/warren/internal/schema"
)

// DefaultTimeout bounds the connection handshake when the configuration
// supplies no timeout. Individual calls are bounded by their caller's
// context.
const DefaultTimeout = 10 * time.Second

// TLSConfig is the optional TLS block of a Config. A non-empty
// RootCertPath selects mutual TLS regardless of address scheme or the
// Secure flag.
type TLSConfig = creds.TLSConfig

// ChannelOptions tunes the pooled channels; the zero value selects the
// built-in defaults.
type ChannelOptions = pool.ChannelOptions

// Config describes a client. It is immutable after Build.
type Config struct {
	// Address of the service. Required. May carry an https:// scheme to
	// request server-auth TLS, or be a bare host:port.
	Address string

	// Optional credentials, folded into an authorization header on
	// every call.
	Username string
	Password string

	// DBName scopes every call to one logical database.
	DBName string

	// Secure requests server-auth TLS for a plain address, equivalent
	// to an https:// scheme.
	Secure bool

	// TLS enables certificate-based transport security.
	TLS *TLSConfig

	// Channel tunes the pooled channels.
	Channel ChannelOptions

	// MaxChannels bounds the channel pool. Zero selects the default.
	MaxChannels int32

	// EnableBreaker adds a circuit breaker around channel creation.
	EnableBreaker bool

	// Identifier names this client to the server. Defaults to a fresh
	// UUID.
	Identifier string

	// Timeout bounds the handshake. Zero selects DefaultTimeout.
	Timeout time.Duration

	// SchemaPath and ServicePath override the bundled protocol files.
	SchemaPath  string
	ServicePath string

	// Logger receives structured diagnostics. Defaults to an INFO-level
	// stderr logger.
	Logger *slog.Logger
}

// validate checks the invariants Build relies on. It runs before any
// file or network I/O.
func (c Config) validate() error {
	if c.Address == "" {
		return errs.Config("address", errs.ErrMissingAddress)
	}
	return nil
}

// timeout returns the effective handshake timeout.
func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// schemaPaths returns the schema override paths.
func (c Config) schemaPaths() schema.Paths {
	return schema.Paths{Schema: c.SchemaPath, Service: c.ServicePath}
}
