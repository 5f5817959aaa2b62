package partybus

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	t.Parallel()

	hashed, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hashed)
	assert.True(t, strings.HasPrefix(hashed, "$argon2id$"))

	ok, err := VerifyPassword(hashed, "hunter2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword(hashed, "hunter3")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyPassword("not-a-hash", "hunter2")
	assert.Error(t, err)
}

func TestChunkItems(t *testing.T) {
	t.Parallel()

	chunks := chunkItems(2, "a", "b", "c", "d", "e")
	assert.Equal(
		t,
		[][]string{{"a", "b"}, {"c", "d"}, {"e"}},
		chunks,
	)

	assert.Empty(t, chunkItems[string](2))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, "", truncate("", 4))
}

func TestContextLogger(t *testing.T) {
	t.Parallel()

	_, ok := ContextLogger(context.Background())
	assert.False(t, ok)

	logger := slog.Default().With("test_name", t.Name())
	ctx := WithLogger(context.Background(), logger)
	got, ok := ContextLogger(ctx)
	assert.True(t, ok)
	assert.Equal(t, logger, got)
}

func TestStructToSlogValueRedaction(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Discord.Token = "super-secret-token"
	cfg.API.Secret = "super-secret-cookie-key"

	rendered := cfg.LogValue().String()
	assert.NotContains(t, rendered, "super-secret-token")
	assert.NotContains(t, rendered, "super-secret-cookie-key")
	assert.Contains(t, rendered, "[redacted]")
}

func TestGenerateRandomHexString(t *testing.T) {
	t.Parallel()

	s, err := generateRandomHexString(16)
	require.NoError(t, err)
	assert.Len(t, s, 32)

	other, err := generateRandomHexString(16)
	require.NoError(t, err)
	assert.NotEqual(t, s, other)
}
