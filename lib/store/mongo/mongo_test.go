//go:build integration

package mongo

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/walletboot/lib/store"
)

// uri requires an available MongoDB server at localhost:27017.
var uri string = "mongodb://localhost:27017"

func TestMongo(t *testing.T) {
	ctx := context.Background()

	m, err := New(uri)
	require.NoError(t, err)
	defer m.Close()

	key := "test-" + uuid.NewString()

	ok, err := m.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.Get(ctx, key)
	assert.ErrorIs(t, err, store.ErrDataNotFound)

	require.NoError(t, m.Set(ctx, key, []byte("first")))
	require.NoError(t, m.Set(ctx, key, []byte("second")))

	v, err := m.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "second", string(v))

	ok, err = m.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = m.col.DeleteOne(ctx, map[string]string{"_id": key})
	require.NoError(t, err)
}
