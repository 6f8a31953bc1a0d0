// Package errs defines the error taxonomy shared by the warren client:
// configuration, connectivity, incompatibility, and protocol errors.
package errs

import (
	"errors"
	"strconv"
)

// Sentinel errors for common failure modes.
var (
	ErrMissingAddress = errors.New("address is required")
	ErrPoolClosed     = errors.New("channel pool closed")
)

// ConfigError reports an invalid or unusable client configuration:
// a missing address, an unreadable certificate file, a missing schema
// file, or an unresolvable schema type name. It is fatal at construction
// and never retried.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Err.Error()
	}
	return "configuration: " + e.Field + ": " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Config wraps err as a ConfigError for the named configuration field.
func Config(field string, err error) error {
	return &ConfigError{Field: field, Err: err}
}

// ConnectivityError reports a network-level failure: channel creation or
// the RPC transport itself. The offending channel is discarded by the
// pool; a later call may succeed on a fresh channel.
type ConnectivityError struct {
	Address string
	Err     error
}

func (e *ConnectivityError) Error() string {
	if e.Address == "" {
		return "connectivity: " + e.Err.Error()
	}
	return "connectivity: " + e.Address + ": " + e.Err.Error()
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// Connectivity wraps err as a ConnectivityError for the given address.
func Connectivity(address string, err error) error {
	return &ConnectivityError{Address: address, Err: err}
}

// IncompatibilityError reports that the server lacks a capability the
// caller requires. It is distinguishable from a ConnectivityError: the
// server answered, it just predates the requested operation.
type IncompatibilityError struct {
	Message string
}

func (e *IncompatibilityError) Error() string { return e.Message }

// DefaultIncompatibilityMessage is used when the caller supplies none.
const DefaultIncompatibilityMessage = "the server does not support this operation; client and server versions are mismatched"

// Incompatible builds an IncompatibilityError with msg, or with the
// default message when msg is empty.
func Incompatible(msg string) error {
	if msg == "" {
		msg = DefaultIncompatibilityMessage
	}
	return &IncompatibilityError{Message: msg}
}

// ProtocolError reports a malformed payload: an encode or decode failure
// of a schema-typed message. Never retried.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return "protocol: " + e.Op + ": " + e.Err.Error()
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Protocol wraps err as a ProtocolError for the named operation.
func Protocol(op string, err error) error {
	return &ProtocolError{Op: op, Err: err}
}

// ServerError reports a non-zero status the server returned inside an
// otherwise successful RPC response.
type ServerError struct {
	Code   int32
	Reason string
}

func (e *ServerError) Error() string {
	return "server error " + strconv.Itoa(int(e.Code)) + ": " + e.Reason
}

// IsConfig reports whether err is (or wraps) a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsConnectivity reports whether err is (or wraps) a ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// IsIncompatible reports whether err is (or wraps) an IncompatibilityError.
func IsIncompatible(err error) bool {
	var ie *IncompatibilityError
	return errors.As(err, &ie)
}

// IsProtocol reports whether err is (or wraps) a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
