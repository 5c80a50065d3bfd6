package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestHashModelDeterministic(t *testing.T) {
	ctx := context.Background()
	text := "def get_user(user_id):\n    return db.fetch(user_id)"

	first, err := HashModel{}.Encode(ctx, []string{text})
	require.NoError(t, err)
	second, err := HashModel{}.Encode(ctx, []string{text})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first[0], Dimension)
	assert.InDelta(t, 1.0, dot(first[0], first[0]), 1e-5)
}

func TestHashModelBatchMatchesSingle(t *testing.T) {
	ctx := context.Background()
	texts := []string{"class UserService:", "async def create(self, name)", "parse config file"}

	batch, err := HashModel{}.Encode(ctx, texts)
	require.NoError(t, err)

	for i, text := range texts {
		single, err := HashModel{}.Encode(ctx, []string{text})
		require.NoError(t, err)
		assert.Equal(t, single[0], batch[i])
	}
}

func TestHashModelSimilarity(t *testing.T) {
	vectors, err := HashModel{}.Encode(context.Background(), []string{
		"def load_user_profile(user_id): return profiles[user_id]",
		"load user profile",
		"def render_chart(points): plot(points)",
	})
	require.NoError(t, err)

	related := dot(vectors[0], vectors[1])
	unrelated := dot(vectors[2], vectors[1])
	assert.Greater(t, related, unrelated)
}

func TestHashModelEmptyText(t *testing.T) {
	vectors, err := HashModel{}.Encode(context.Background(), []string{""})
	require.NoError(t, err)
	assert.Len(t, vectors[0], Dimension)
	assert.Zero(t, dot(vectors[0], vectors[0]))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"get", "user", "by", "id"}, tokenize("getUserById"))
	assert.Equal(t, []string{"get", "user", "x", "1"}, tokenize("get_user(x, 1)"))
}
