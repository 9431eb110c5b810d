package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/kr1s57/sshsentinel/internal/entity"
)

// Multi fans a notification out to every channel. A failing channel does
// not stop delivery to the others; the joined errors come back so the
// caller can requeue.
type Multi struct {
	channels []Notifier
}

// NewMulti builds a fan-out notifier over the given channels
func NewMulti(channels ...Notifier) *Multi {
	return &Multi{channels: channels}
}

// Name lists the member channels
func (m *Multi) Name() string {
	names := make([]string, 0, len(m.channels))
	for _, c := range m.channels {
		names = append(names, c.Name())
	}
	return strings.Join(names, "+")
}

// SendAlert delivers the alert to every channel
func (m *Multi) SendAlert(ctx context.Context, alert *entity.AlertRecord) error {
	var errs []error
	for _, c := range m.channels {
		if err := c.SendAlert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendDigest delivers the digest to every channel
func (m *Multi) SendDigest(ctx context.Context, subject, body string) error {
	var errs []error
	for _, c := range m.channels {
		if err := c.SendDigest(ctx, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
