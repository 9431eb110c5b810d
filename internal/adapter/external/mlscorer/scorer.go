package mlscorer

import (
	"context"

	"github.com/kr1s57/sshsentinel/internal/entity"
)

// Result is the scorer's verdict for one event
type Result struct {
	Available  bool    `json:"available"`
	RiskScore  int     `json:"risk_score"` // 0-100
	Confidence float64 `json:"confidence"` // 0-1
	Label      string  `json:"label,omitempty"`
}

// Scorer produces a model-based risk score for an event. An unavailable
// scorer reports Available=false rather than an error: classification
// proceeds on behavioral signals alone.
type Scorer interface {
	Score(ctx context.Context, event *entity.Event) Result
}

// Disabled is the scorer used when no model endpoint is configured
type Disabled struct{}

// Score always reports an unavailable result
func (Disabled) Score(context.Context, *entity.Event) Result {
	return Result{Available: false}
}
