package rpcfetch

import (
	"context"
	"errors"
	"fmt"
)

// Package errors.
var (
	// ErrNoEndpoints is returned when the pool has no endpoints.
	ErrNoEndpoints = errors.New("no RPC endpoints available")

	// ErrInvalidConfig is returned by NewCloner for an unusable configuration.
	ErrInvalidConfig = errors.New("invalid cloner configuration")

	// ErrTooManyAccounts is returned when one request names more accounts
	// than getMultipleAccounts accepts.
	ErrTooManyAccounts = errors.New("too many accounts in one request")

	// ErrUnsupportedEncoding is returned for account data in an encoding
	// the client did not ask for.
	ErrUnsupportedEncoding = errors.New("unsupported account data encoding")
)

// RPCError represents a JSON-RPC error response.
type RPCError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// IsRetryable returns true if the error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		// -32005: node is behind
		// -32016: minimum context slot not reached
		return rpcErr.Code == -32005 || rpcErr.Code == -32016
	}

	if errors.Is(err, ErrTooManyAccounts) || errors.Is(err, ErrUnsupportedEncoding) {
		return false
	}

	// Transport and decoding failures are potentially retryable
	return true
}
