package database

import (
	"context"
	"testing"

	"insurance-checkout/internal/common/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedis_Ping(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedis(config.RedisConfig{Address: mr.Addr(), KeyPrefix: "checkout"})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Ping(context.Background()))
	assert.NotNil(t, client.GetClient())
}

func TestNewRedis_EmptyAddress(t *testing.T) {
	_, err := NewRedis(config.RedisConfig{})
	assert.Error(t, err)
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "draft:sub-1", JoinKey("", "draft", "sub-1"))
	assert.Equal(t, "p:draft:sub-1", JoinKey("p", "draft", "sub-1"))
}
