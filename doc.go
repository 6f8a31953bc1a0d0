// Package warren is a Go client for the Warren vector database.
//
// The client maintains a bounded pool of gRPC channels to a single
// service endpoint, selects the transport security mode from the
// configuration (plaintext, server-auth TLS, or mutual TLS), and probes
// server capability with a handshake RPC so version-sensitive operations
// fail with a descriptive incompatibility error instead of a confusing
// transport one.
//
// Construction is two-phase: Build validates the configuration, reads
// certificate material, and compiles the protocol schema before any
// network I/O, returning a typed error rather than a half-usable client.
//
//	client, err := warren.Build(warren.Config{Address: "localhost:19530"})
//	if err != nil { ... }
//	defer client.Close()
//
//	names, err := client.ListCollections(ctx)
package warren
