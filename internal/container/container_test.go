package container

import (
	"context"
	"testing"
	"vidcat/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithoutRedis(t *testing.T) {
	c, err := New(context.Background(), config.Defaults())
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.Redis)
	assert.NotNil(t, c.Client)
	assert.NotNil(t, c.Store)
	assert.NotNil(t, c.Search)
	assert.NotNil(t, c.Stats)
	assert.False(t, c.Store.Loaded())
}

func TestNewUnreachableRedisIsNotFatal(t *testing.T) {
	cfg := config.Defaults()
	cfg.Redis.Host = "127.0.0.1"
	cfg.Redis.Port = "1"

	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, c.Redis)
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.Error(t, err)
}
