package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostgresImageMetadataRepository_keyLookupsUseIndex(t *testing.T) {
	for _, query := range []string{getImageMetadataQuery, deleteImageMetadataQuery} {
		require.Contains(t, query, "WHERE id = $1::uuid")
		require.NotContains(t, query, "WHERE id::text")
	}
}

func TestPostgresImageMetadataRepository_nonUUIDNeverReachesDatabase(t *testing.T) {
	// A nil pool panics if the repository tries to query it.
	repo := NewPostgresImageMetadataRepository(nil)
	ctx := context.Background()

	_, err := repo.Get(ctx, "../../etc/passwd")
	require.ErrorIs(t, err, ErrImageMetadataNotFound)
	require.NoError(t, repo.Delete(ctx, "not-a-uuid"))
}
