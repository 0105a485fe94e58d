package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRenderBody(t *testing.T) {
	body, err := renderBody("012345", 10*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, body, "<b>012345</b>")
	assert.Contains(t, body, "expire in 10 minutes")
}

func TestNewSMTPSender_Defaults(t *testing.T) {
	_, err := NewSMTPSender(SMTPConfig{}, zap.NewNop().Sugar())
	require.Error(t, err)

	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Username: "bot@example.com"}, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, 465, s.cfg.Port)
	assert.Equal(t, "bot@example.com", s.cfg.From)
	assert.Equal(t, 10*time.Second, s.cfg.Timeout)
	assert.Len(t, s.options(), 6)
}

func TestSMTPSender_UnreachableIsUnavailable(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{
		Host:    "127.0.0.1",
		Port:    1,
		From:    "bot@example.com",
		Timeout: 500 * time.Millisecond,
	}, zap.NewNop().Sugar())
	require.NoError(t, err)

	err = s.Send(context.Background(), "a@x.com", "123456", SubjectLogin)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestLogSender(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSender(zap.New(core).Sugar())

	require.NoError(t, s.Send(context.Background(), "a@x.com", "123456", SubjectRegistration))
	entries := logs.FilterField(zap.String("code", "123456")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "code delivery (log only)", entries[0].Message)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, "a@x.com", "123456", SubjectRegistration), ErrUnavailable)
}
