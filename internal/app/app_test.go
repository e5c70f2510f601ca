package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-marketplace/internal/auth"
	"ms-marketplace/internal/config"
	"ms-marketplace/internal/kafka"
	"ms-marketplace/internal/logger"
)

func TestNewPublisherDisabled(t *testing.T) {
	pub, closeFn := NewPublisher(config.KafkaConfig{Enabled: false}, logger.NewNop())
	defer closeFn()

	_, ok := pub.(kafka.Discard)
	assert.True(t, ok)
	assert.NoError(t, pub.PublishJSON(context.Background(), "topic", "key", map[string]string{"a": "b"}))
}

func TestUserVerifierNeedsASource(t *testing.T) {
	_, err := UserVerifier(context.Background(), config.AuthConfig{}, logger.NewNop())
	assert.Error(t, err)
}

func TestUserVerifierAcceptsDeviceTokens(t *testing.T) {
	cfg := config.AuthConfig{DeviceSecret: "gate-secret", DeviceIssuer: "gate"}
	v, err := UserVerifier(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)

	issuer, err := auth.NewHMACVerifier(cfg.DeviceSecret, cfg.DeviceIssuer)
	require.NoError(t, err)
	token, err := issuer.Issue("device-7", []string{auth.RoleModerator}, time.Minute)
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "device-7", id.UserID)
	assert.True(t, id.HasRole(auth.RoleModerator))
}

func TestNewServerAppliesTimeouts(t *testing.T) {
	srv := NewServer(":0", nil, config.ServerConfig{ReadTimeout: time.Second, WriteTimeout: 2 * time.Second, IdleTimeout: 3 * time.Second})
	assert.Equal(t, time.Second, srv.ReadTimeout)
	assert.Equal(t, 2*time.Second, srv.WriteTimeout)
	assert.Equal(t, 3*time.Second, srv.IdleTimeout)
}
