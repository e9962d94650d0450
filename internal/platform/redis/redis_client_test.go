package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfig は環境変数と既定値の読み込みを検証します。
func TestLoadConfig(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "2")

	cfg := LoadConfig()

	assert.Equal(t, "cache:6379", cfg.Addr())
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, 2, cfg.DB)
}

// TestLoadConfig_InvalidDB は不正な REDIS_DB が 0 に丸められることを検証します。
func TestLoadConfig_InvalidDB(t *testing.T) {
	t.Setenv("REDIS_HOST", "")
	t.Setenv("REDIS_DB", "abc")

	cfg := LoadConfig()

	assert.Equal(t, 0, cfg.DB)
	assert.Empty(t, cfg.Host)
}

// TestNewRedisClient_Disabled はホスト未設定時に接続せず ErrRedisDisabled を返すことを検証します。
func TestNewRedisClient_Disabled(t *testing.T) {
	t.Parallel()

	rdb, err := NewRedisClient(context.Background(), Config{})

	assert.Nil(t, rdb)
	assert.ErrorIs(t, err, ErrRedisDisabled)
}

func TestPing(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		rdb, mock := redismock.NewClientMock()
		mock.ExpectPing().SetVal("PONG")

		require.NoError(t, Ping(context.Background(), rdb))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		t.Parallel()
		rdb, mock := redismock.NewClientMock()
		down := errors.New("connection refused")
		mock.ExpectPing().SetErr(down)

		err := Ping(context.Background(), rdb)

		assert.ErrorIs(t, err, down)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
