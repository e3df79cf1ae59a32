package apikey

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/postgres"
)

func TestHashKey(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashKey(""))
	assert.Len(t, HashKey("abc"), 64)
	assert.NotEqual(t, HashKey("abc"), HashKey("abd"))
}

func TestGenerateRawKey(t *testing.T) {
	a, err := generateRawKey()
	require.NoError(t, err)
	b, err := generateRawKey()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestKeyErrorsAreUnauthorized(t *testing.T) {
	assert.True(t, errors.Is(ErrInvalidKey, apperrors.ErrUnauthorized))
	assert.True(t, errors.Is(ErrExpiredKey, apperrors.ErrUnauthorized))
}

func TestKeyInfo_Expired(t *testing.T) {
	now := time.Unix(1000, 0)
	past, future := now.Add(-time.Second), now.Add(time.Hour)

	assert.False(t, (&KeyInfo{}).Expired(now))
	assert.True(t, (&KeyInfo{ExpiresAt: &past}).Expired(now))
	assert.True(t, (&KeyInfo{ExpiresAt: &now}).Expired(now))
	assert.False(t, (&KeyInfo{ExpiresAt: &future}).Expired(now))
}

func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}
	cfg := config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            5432,
		Database:        envOrDefault("TEST_POSTGRES_DB", "federatedsearch_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "federatedsearch"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}
	db, err := postgres.New(context.Background(), cfg)
	if err != nil {
		t.Skipf("skipping: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func TestValidator_Lifecycle(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	v := NewValidator(db)
	require.NoError(t, v.Migrate(ctx))

	name := "test-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	key, err := v.CreateKey(ctx, name, nil)
	require.NoError(t, err)

	info, err := v.Validate(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, name, info.Name)
	assert.Nil(t, info.ExpiresAt)

	_, err = v.Validate(ctx, key+"x")
	assert.ErrorIs(t, err, ErrInvalidKey)

	require.NoError(t, v.RevokeKey(ctx, key))
	_, err = v.Validate(ctx, key)
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, v.RevokeKey(ctx, key), ErrInvalidKey)

	soon := time.Now().Add(time.Hour)
	expiring, err := v.CreateKey(ctx, name+"-exp", &soon)
	require.NoError(t, err)
	v.now = func() time.Time { return soon.Add(time.Second) }
	_, err = v.Validate(ctx, expiring)
	assert.ErrorIs(t, err, ErrExpiredKey)
}
