package notify

import (
	"context"

	"github.com/kr1s57/sshsentinel/internal/entity"
)

// Notifier delivers alert messages to an external channel. Delivery is
// best effort: failures are logged by the caller and never block the
// pipeline.
type Notifier interface {
	// SendAlert delivers a single alert
	SendAlert(ctx context.Context, alert *entity.AlertRecord) error
	// SendDigest delivers a rendered multi-alert message (batch, hourly
	// digest, daily summary)
	SendDigest(ctx context.Context, subject, body string) error
	// Name identifies the channel for logs
	Name() string
}
