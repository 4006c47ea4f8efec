package tinywebd

import (
	"context"
	"sync"

	"github.com/ehrlich-b/tinywebd/internal/interfaces"
)

// MockVerifier is a test double for interfaces.Verifier: it answers every
// Verify call with a fixed result while tracking how it was called, so
// tests of the connection/server layer don't need a real database pool.
type MockVerifier struct {
	mu sync.Mutex

	ok  bool
	err error

	calls        int
	lastUsername string
	lastPassword string
	lastIsLogin  bool
}

// NewMockVerifier returns a MockVerifier that answers every call with ok/err.
func NewMockVerifier(ok bool, err error) *MockVerifier {
	return &MockVerifier{ok: ok, err: err}
}

// Verify implements interfaces.Verifier.
func (v *MockVerifier) Verify(ctx context.Context, username, password string, isLogin bool) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.calls++
	v.lastUsername = username
	v.lastPassword = password
	v.lastIsLogin = isLogin
	return v.ok, v.err
}

// SetResult changes what subsequent Verify calls return.
func (v *MockVerifier) SetResult(ok bool, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ok, v.err = ok, err
}

// Calls returns how many times Verify has been invoked.
func (v *MockVerifier) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

// LastCall returns the arguments of the most recent Verify call.
func (v *MockVerifier) LastCall() (username, password string, isLogin bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastUsername, v.lastPassword, v.lastIsLogin
}

// Reset clears call tracking.
func (v *MockVerifier) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = 0
	v.lastUsername, v.lastPassword, v.lastIsLogin = "", "", false
}

var _ interfaces.Verifier = (*MockVerifier)(nil)
