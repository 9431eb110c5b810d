package threatintel

import (
	"context"
	"errors"

	"github.com/kr1s57/sshsentinel/internal/entity"
)

// Provider is one external reputation source
type Provider interface {
	// Lookup returns the normalized reputation record for an IP.
	// Implementations check their cache first and consume their rate
	// budget only on a miss; an exhausted budget returns ErrRateLimited
	// without blocking.
	Lookup(ctx context.Context, ip string) (*entity.ReputationRecord, error)
	Name() string
	IsConfigured() bool
}

// ErrRateLimited is returned when a provider's request budget is spent.
// Callers treat it as "no data", never as a pipeline failure.
var ErrRateLimited = errors.New("threatintel: provider rate budget exhausted")

// ErrNotConfigured is returned by providers missing their API key
var ErrNotConfigured = errors.New("threatintel: provider not configured")
