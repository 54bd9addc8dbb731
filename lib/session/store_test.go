package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"kite-agent/lib/testutil"
)

func setupStore(t *testing.T) *Store {
	result, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "session",
		DbSchema: Schema,
	})
	t.Cleanup(cleanup)
	return NewStore(result.DB)
}

func TestStoreInsertQuery(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	missing, err := store.Query(ctx, "1910100000")
	require.NoError(t, err)
	require.Nil(t, missing)

	s := New("1910100000", "password")
	s.Cookies["sit.edu.cn"] = map[string]string{"JSESSIONID": "abc"}
	require.NoError(t, store.Insert(ctx, s))

	got, err := store.Query(ctx, "1910100000")
	require.NoError(t, err)
	require.Equal(t, "1910100000", got.Account)
	require.Equal(t, "password", got.Password)
	require.Equal(t, "abc", got.Cookies["sit.edu.cn"]["JSESSIONID"])
}

func TestStoreInsertReplaces(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	require.NoError(t, store.Insert(ctx, New("1910100000", "old")))
	require.NoError(t, store.Insert(ctx, New("1910100000", "new")))

	count, err := store.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	got, err := store.Query(ctx, "1910100000")
	require.NoError(t, err)
	require.Equal(t, "new", got.Password)
}

func TestStoreQueryOr(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	fresh, err := store.QueryOr(ctx, "1910100000", "password")
	require.NoError(t, err)
	require.Equal(t, "password", fresh.Password)

	// QueryOr does not persist on its own
	count, err := store.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	require.NoError(t, store.Insert(ctx, New("1910100000", "stored")))
	got, err := store.QueryOr(ctx, "1910100000", "ignored")
	require.NoError(t, err)
	require.Equal(t, "stored", got.Password)
}

func TestStoreList(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	for i := 0; i < 5; i++ {
		account := fmt.Sprintf("191010000%d", i)
		require.NoError(t, store.Insert(ctx, New(account, "pw")))
	}

	page, err := store.List(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "1910100000", page[0].Account)
	require.Equal(t, "1910100001", page[1].Account)

	page, err = store.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "1910100004", page[0].Account)

	page, err = store.List(ctx, 3, 2)
	require.NoError(t, err)
	require.Empty(t, page)
}

func TestStoreListSkipsCorruptRows(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	require.NoError(t, store.Insert(ctx, New("1910100000", "pw")))
	_, err := store.db.ExecContext(ctx, `
		INSERT INTO sessions (key, account, data, last_update)
		VALUES ('s:corrupt', 'corrupt', X'FF', 0)`)
	require.NoError(t, err)

	page, err := store.List(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "1910100000", page[0].Account)
}

func TestStoreChooseRandomly(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	none, err := store.ChooseRandomly(ctx)
	require.NoError(t, err)
	require.Nil(t, none)

	accounts := map[string]bool{}
	for i := 0; i < 3; i++ {
		account := fmt.Sprintf("191010000%d", i)
		accounts[account] = true
		require.NoError(t, store.Insert(ctx, New(account, "pw")))
	}

	for i := 0; i < 20; i++ {
		got, err := store.ChooseRandomly(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.True(t, accounts[got.Account])
	}
}

func TestStoreDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	require.NoError(t, store.Insert(ctx, New("1910100000", "pw")))
	require.NoError(t, store.Insert(ctx, New("1910100001", "pw")))

	require.NoError(t, store.Delete(ctx, "1910100000"))
	got, err := store.Query(ctx, "1910100000")
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, store.Clear(ctx))
	count, err := store.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}
