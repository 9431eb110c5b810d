package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kr1s57/sshsentinel/internal/entity"
)

type stubChannel struct {
	name   string
	fail   bool
	alerts int
	digest int
}

func (s *stubChannel) SendAlert(_ context.Context, _ *entity.AlertRecord) error {
	if s.fail {
		return errors.New(s.name + " down")
	}
	s.alerts++
	return nil
}

func (s *stubChannel) SendDigest(_ context.Context, _, _ string) error {
	if s.fail {
		return errors.New(s.name + " down")
	}
	s.digest++
	return nil
}

func (s *stubChannel) Name() string { return s.name }

func TestMultiDeliversToEveryChannel(t *testing.T) {
	a := &stubChannel{name: "webhook"}
	b := &stubChannel{name: "smtp"}
	m := NewMulti(a, b)

	assert.Equal(t, "webhook+smtp", m.Name())
	assert.NoError(t, m.SendAlert(context.Background(), &entity.AlertRecord{SourceIP: "203.0.113.9"}))
	assert.NoError(t, m.SendDigest(context.Background(), "subject", "body"))
	assert.Equal(t, 1, a.alerts)
	assert.Equal(t, 1, b.alerts)
	assert.Equal(t, 1, b.digest)
}

func TestMultiFailingChannelDoesNotStopOthers(t *testing.T) {
	broken := &stubChannel{name: "webhook", fail: true}
	working := &stubChannel{name: "smtp"}
	m := NewMulti(broken, working)

	err := m.SendAlert(context.Background(), &entity.AlertRecord{SourceIP: "203.0.113.9"})
	assert.Error(t, err)
	assert.Equal(t, 1, working.alerts)
}

func TestMultiEmptyIsNoOp(t *testing.T) {
	m := NewMulti()
	assert.NoError(t, m.SendAlert(context.Background(), &entity.AlertRecord{}))
	assert.NoError(t, m.SendDigest(context.Background(), "s", "b"))
}
