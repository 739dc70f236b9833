package vector

import (
	"context"
	"errors"
	"testing"

	"studymosaic/internal/util"

	"github.com/stretchr/testify/require"
)

func TestToLiteral(t *testing.T) {
	got := ToLiteral([]float32{0.25, -1, 0})
	require.Equal(t, "[0.250000,-1.000000,0.000000]", got)
}

func TestQueryRejectsNonPositiveTopK(t *testing.T) {
	ix := &Index{}
	_, err := ix.QueryByVector(context.Background(), "s1", []float32{0.1}, 0)
	require.True(t, errors.Is(err, util.ErrInvalidArgument))

	_, err = ix.QueryByVector(context.Background(), "s1", []float32{0.1}, -3)
	require.True(t, errors.Is(err, util.ErrInvalidArgument))
}

func TestUpsertVectorCountMismatch(t *testing.T) {
	ix := &Index{}
	err := ix.Upsert(context.Background(), "s1", []Item{{ChunkID: "a"}}, [][]float32{})
	require.True(t, errors.Is(err, util.ErrInvalidArgument))
}

func TestUpsertNoItemsIsNoop(t *testing.T) {
	ix := &Index{}
	require.NoError(t, ix.Upsert(context.Background(), "s1", nil, nil))
}
