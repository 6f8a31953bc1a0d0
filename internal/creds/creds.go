// Package creds resolves a target address and TLS configuration into a
// transport security mode and the matching gRPC transport credentials.
package creds

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"github.com/shhac/warren/internal/errs"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Mode is the transport security tier of a connection.
type Mode int

const (
	// ModeDisabled is plaintext: no secure scheme and no TLS block.
	ModeDisabled Mode = iota
	// ModeOneWay is server-authenticated TLS with no client material.
	ModeOneWay
	// ModeTwoWay is mutual TLS driven by a caller-supplied root certificate.
	ModeTwoWay
)

// String returns a human-readable representation of the security mode
func (m Mode) String() string {
	switch m {
	case ModeDisabled:
		return "Disabled"
	case ModeOneWay:
		return "OneWay"
	case ModeTwoWay:
		return "TwoWay"
	default:
		return "Unknown"
	}
}

// TLSConfig carries the optional TLS block of a client configuration.
// A non-empty RootCertPath selects mutual TLS regardless of the address
// scheme or the ssl flag.
type TLSConfig struct {
	RootCertPath string // Path to CA certificate
	CertPath     string // Path to client certificate (mTLS)
	KeyPath      string // Path to client key (mTLS)
	ServerName   string // Server name override for certificate verification
	SkipVerify   bool   // Skip TLS certificate verification (insecure)
}

// ParseAddress splits a raw target into a dialable host:port and whether
// the scheme requests transport security. Recognized prefixes are
// https:// (secure), http:// and tcp:// (plain); a bare host:port is plain.
func ParseAddress(raw string) (host string, secure bool) {
	switch {
	case strings.HasPrefix(raw, "https://"):
		return strings.TrimPrefix(raw, "https://"), true
	case strings.HasPrefix(raw, "http://"):
		return strings.TrimPrefix(raw, "http://"), false
	case strings.HasPrefix(raw, "tcp://"):
		return strings.TrimPrefix(raw, "tcp://"), false
	default:
		return raw, false
	}
}

// Resolve classifies (address scheme, ssl flag, TLS block) into a security
// mode and builds the transport credentials for it. The decision is pure
// given a filesystem snapshot: the same inputs always yield the same mode.
//
// A read error on any configured certificate path is a configuration
// error; an unconfigured path is simply absent material, which keeps
// partial mutual-TLS setups legal.
func Resolve(address string, tlsCfg *TLSConfig, sslFlag bool) (Mode, credentials.TransportCredentials, error) {
	_, schemeSecure := ParseAddress(address)

	mode := ModeDisabled
	if schemeSecure || sslFlag {
		mode = ModeOneWay
	}
	if tlsCfg != nil && tlsCfg.RootCertPath != "" {
		// A root certificate always wins, even for a plaintext scheme.
		mode = ModeTwoWay
	}

	switch mode {
	case ModeDisabled:
		return mode, insecure.NewCredentials(), nil

	case ModeOneWay:
		cfg := &tls.Config{}
		if tlsCfg != nil {
			cfg.ServerName = tlsCfg.ServerName
			cfg.InsecureSkipVerify = tlsCfg.SkipVerify
		}
		return mode, credentials.NewTLS(cfg), nil

	default:
		tc, err := twoWayCredentials(tlsCfg)
		if err != nil {
			return mode, nil, err
		}
		return mode, tc, nil
	}
}

// twoWayCredentials builds mutual-TLS credentials from the PEM paths in
// the TLS block. The client certificate and key are only loaded when both
// paths are configured.
func twoWayCredentials(tlsCfg *TLSConfig) (credentials.TransportCredentials, error) {
	pem, err := os.ReadFile(tlsCfg.RootCertPath)
	if err != nil {
		return nil, errs.Config("tls.root_cert", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errs.Config("tls.root_cert", fmt.Errorf("no certificates found in %s", tlsCfg.RootCertPath))
	}

	cfg := &tls.Config{
		RootCAs:            pool,
		ServerName:         tlsCfg.ServerName,
		InsecureSkipVerify: tlsCfg.SkipVerify,
	}

	if tlsCfg.CertPath != "" && tlsCfg.KeyPath != "" {
		pair, err := tls.LoadX509KeyPair(tlsCfg.CertPath, tlsCfg.KeyPath)
		if err != nil {
			return nil, errs.Config("tls.client_pair", err)
		}
		cfg.Certificates = []tls.Certificate{pair}
	}

	return credentials.NewTLS(cfg), nil
}
