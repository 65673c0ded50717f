package storage

import (
	"context"
	"testing"

	"github.com/brandlens/ai-visibility/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, closeFn, err := Open(ctx, &config.Config{StorageBackend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
	assert.NoError(t, closeFn())

	_, closeFn, err = Open(ctx, &config.Config{StorageBackend: "s3"})
	assert.Error(t, err)
	assert.NotNil(t, closeFn)

	_, _, err = Open(ctx, &config.Config{StorageBackend: "azure"})
	assert.Error(t, err, "an account name is required")
}
