// Package interfaces provides internal interface definitions for tinywebd.
// These are separate from the root package's types to avoid circular
// imports between the root server package and internal packages.
package interfaces

import "context"

// Observer collects per-connection metrics. Implementations must be
// thread-safe: methods are called concurrently from every worker goroutine.
type Observer interface {
	ObserveAccept()
	ObserveClose()
	ObserveRequest(statusCode int, bytesIn, bytesOut uint64, latencyNs uint64)
	ObserveRejected()
}

// Verifier checks or creates a user record for the login/register routes.
// It is implemented by internal/dbpool so the connection engine can depend
// on this narrow interface instead of database/sql directly.
type Verifier interface {
	Verify(ctx context.Context, username, password string, isLogin bool) (bool, error)
}
