package journal

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"nftmarket/core/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendAdvancesHead(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.Head()
	require.NoError(t, err)
	require.False(t, ok)

	receipt := &types.Receipt{
		ID:          "0xabc",
		Height:      7,
		Instruction: "list",
		StateRoot:   "0x01",
		Events:      []*types.Event{{Type: "listing.created", Attributes: map[string]string{"price": "10"}}},
	}
	require.NoError(t, store.Append(receipt))

	head, ok, err := store.Head()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Head{Height: 7, Root: "0x01"}, head)

	got, err := store.Receipt("0xabc")
	require.NoError(t, err)
	require.Equal(t, "list", got.Instruction)
	require.Len(t, got.Events, 1)
	require.Equal(t, "10", got.Events[0].Attributes["price"])
}

func TestReceiptMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Receipt("nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecentNewestFirst(t *testing.T) {
	store := newTestStore(t)
	for h := uint64(1); h <= 5; h++ {
		require.NoError(t, store.Append(&types.Receipt{ID: fmt.Sprintf("tx-%d", h), Height: h}))
	}
	recent, err := store.Recent(3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	require.Equal(t, "tx-5", recent[0].ID)
	require.Equal(t, "tx-3", recent[2].ID)

	all, err := store.Recent(100)
	require.NoError(t, err)
	require.Len(t, all, 5)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}
