// internal/transport/mock.go
package transport

import (
	"context"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Mock simulates a provider: addresses without "@" are rejected permanently,
// and a configurable fraction of calls fails transiently.
type Mock struct {
	FailureRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMock builds a mock transport with the given transient failure
// probability in [0,1).
func NewMock(failureRate float64, seed int64) *Mock {
	return &Mock{
		FailureRate: failureRate,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

func (m *Mock) Send(ctx context.Context, to, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &TransientError{Reason: err.Error()}
	}
	if !strings.Contains(to, "@") {
		return "", &PermanentError{Reason: "invalid recipient address: " + to}
	}

	m.mu.Lock()
	roll := m.rng.Float64()
	m.mu.Unlock()

	if roll < m.FailureRate {
		return "", &TransientError{Reason: "provider timeout"}
	}
	return uuid.NewString(), nil
}

var _ Transport = (*Mock)(nil)
