// Package payment implements the Payment Gateway Facade (§2 item 8) and
// the §4.6 settlement operations: processPayment, retryPayment, refund. No
// corpus file implements a PSP facade directly; this is written in the
// teacher's plain-interface style — a small interface plus one in-memory
// implementation the caller injects, mirroring how dispatch.Persistence is
// an interface the teacher's Store depends on rather than a concrete type.
package payment

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"ridecore/internal/apperr"
)

// Gateway is the facade over the external PSP, per §1's explicit framing
// that the core only ever sees `charge(amount, method) -> {ok, pspRef |
// error}`. Real PSP credentials and the HTTP/gRPC client behind this
// interface belong to the embedding process, not the core.
type Gateway interface {
	Charge(ctx context.Context, amount float64, paymentMethodID string) (pspRef string, err error)
}

// MockGateway is a deterministic in-memory PSP used by tests and wired into
// `cmd/server`. FailNextN, when set, causes the
// next N charges to fail before succeeding, so callers can exercise the
// retry path (§8 scenario S5) without a real PSP.
type MockGateway struct {
	mu      sync.Mutex
	failN   int
	calls   int64
}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// FailNextN makes the next n Charge calls fail before any subsequent call
// succeeds.
func (g *MockGateway) FailNextN(n int) {
	g.mu.Lock()
	g.failN = n
	g.mu.Unlock()
}

func (g *MockGateway) Charge(_ context.Context, amount float64, paymentMethodID string) (string, error) {
	atomic.AddInt64(&g.calls, 1)

	g.mu.Lock()
	shouldFail := g.failN > 0
	if shouldFail {
		g.failN--
	}
	g.mu.Unlock()

	if paymentMethodID == "" {
		return "", apperr.Validationf("payment method is required")
	}
	if shouldFail {
		return "", apperr.Dependencyf("psp declined charge of %.2f", amount)
	}
	return "psp_" + uuid.NewString(), nil
}

// Calls reports the number of Charge attempts made so far, exposed for
// tests and metrics.
func (g *MockGateway) Calls() int64 {
	return atomic.LoadInt64(&g.calls)
}
