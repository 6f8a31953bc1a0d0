package errs

import (
	"fmt"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// IsUnimplemented reports whether err carries the gRPC Unimplemented
// status code. This is the only signal used to decide that a server
// predates an RPC method; message text is never inspected.
func IsUnimplemented(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.Unimplemented
}

// ClassifyRPC converts an error returned by an RPC invocation into the
// client's taxonomy. Transport-level codes become ConnectivityError;
// Unimplemented becomes IncompatibilityError; everything else passes
// through unchanged so callers see the server's own status.
func ClassifyRPC(address string, err error) error {
	if err == nil {
		return nil
	}
	if IsConfig(err) || IsConnectivity(err) || IsIncompatible(err) || IsProtocol(err) {
		return err
	}

	st, ok := status.FromError(err)
	if !ok {
		return Connectivity(address, err)
	}

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return Connectivity(address, err)
	case codes.Unimplemented:
		return Incompatible("")
	default:
		return err
	}
}

// FormatStatusDetails extracts rich error details from a gRPC status for
// diagnostics. Returns "" when the status carries no details.
func FormatStatusDetails(st *status.Status) string {
	details := st.Details()
	if len(details) == 0 {
		return ""
	}

	var sections []string
	for _, detail := range details {
		switch d := detail.(type) {
		case *errdetails.BadRequest:
			var lines []string
			for _, fv := range d.GetFieldViolations() {
				lines = append(lines, fmt.Sprintf("  %s: %s", fv.GetField(), fv.GetDescription()))
			}
			if len(lines) > 0 {
				sections = append(sections, "field violations:\n"+strings.Join(lines, "\n"))
			}

		case *errdetails.ErrorInfo:
			line := "error info: " + d.GetReason()
			if d.GetDomain() != "" {
				line += " (domain: " + d.GetDomain() + ")"
			}
			sections = append(sections, line)

		case *errdetails.RetryInfo:
			if delay := d.GetRetryDelay(); delay != nil {
				sections = append(sections, fmt.Sprintf("retry after: %v", delay.AsDuration()))
			}

		case *errdetails.RequestInfo:
			sections = append(sections, "request id: "+d.GetRequestId())

		default:
			sections = append(sections, fmt.Sprintf("detail: %v", detail))
		}
	}

	return strings.Join(sections, "\n")
}
