package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunRowStoreContract runs a suite of tests to verify that a RowStore
// implementation adheres to the interface contract. It only uses the
// message table.
func RunRowStoreContract(t *testing.T, store RowStore) {
	ctx := context.Background()
	// Unique per run so suites can share a backend.
	convID := time.Now().UnixNano() % 1_000_000_000
	uid := func(s string) string { return fmt.Sprintf("contract-%d-%s", convID, s) }

	newMsg := func(name, content string) Row {
		return Row{
			"uid":         uid(name),
			"conv_id":     convID,
			"author_kind": "user",
			"content":     content,
			"orig_msg_id": nil,
			"ctime":       time.Now().UnixMicro(),
			"mtime":       time.Now().UnixMicro(),
		}
	}

	t.Run("Create and Get", func(t *testing.T) {
		id, err := store.Create(ctx, TableMessage, newMsg("get", "hello"))
		require.NoError(t, err, "Create should not return error")
		assert.Positive(t, id)

		row, err := store.Get(ctx, TableMessage, id)
		require.NoError(t, err)
		assert.EqualValues(t, id, row["id"])
		assert.Equal(t, "hello", row["content"])
		assert.EqualValues(t, convID, row["conv_id"])
		assert.Nil(t, row["orig_msg_id"])

		byUID, err := store.GetByUID(ctx, TableMessage, uid("get"))
		require.NoError(t, err)
		assert.EqualValues(t, id, byUID["id"])
	})

	t.Run("Ids increase", func(t *testing.T) {
		a, err := store.Create(ctx, TableMessage, newMsg("inc-a", "a"))
		require.NoError(t, err)
		b, err := store.Create(ctx, TableMessage, newMsg("inc-b", "b"))
		require.NoError(t, err)
		assert.Greater(t, b, a)
	})

	t.Run("Not Found", func(t *testing.T) {
		_, err := store.Get(ctx, TableMessage, 987654321)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = store.GetByUID(ctx, TableMessage, uid("missing"))
		assert.ErrorIs(t, err, domain.ErrNotFound)

		err = store.Update(ctx, TableMessage, 987654321, Row{"content": "x"})
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = store.First(ctx, TableMessage, Filter{Eq("conv_id", convID), Eq("content", "nobody")}, ListOptions{})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Duplicate uid", func(t *testing.T) {
		_, err := store.Create(ctx, TableMessage, newMsg("dup", "one"))
		require.NoError(t, err)
		_, err = store.Create(ctx, TableMessage, newMsg("dup", "two"))
		assert.ErrorIs(t, err, domain.ErrPersistence)
	})

	t.Run("Update", func(t *testing.T) {
		id, err := store.Create(ctx, TableMessage, newMsg("upd", "before"))
		require.NoError(t, err)

		require.NoError(t, store.Update(ctx, TableMessage, id, Row{"content": "after", "orig_msg_id": int64(3)}))
		row, err := store.Get(ctx, TableMessage, id)
		require.NoError(t, err)
		assert.Equal(t, "after", row["content"])
		assert.EqualValues(t, 3, row["orig_msg_id"])
		assert.Equal(t, uid("upd"), row["uid"], "untouched columns are kept")

		require.NoError(t, store.Update(ctx, TableMessage, id, Row{"orig_msg_id": nil}))
		row, err = store.Get(ctx, TableMessage, id)
		require.NoError(t, err)
		assert.Nil(t, row["orig_msg_id"])
	})

	t.Run("List and First", func(t *testing.T) {
		listConv := convID + 1
		var ids []int64
		for i := 0; i < 3; i++ {
			r := newMsg(fmt.Sprintf("list-%d", i), fmt.Sprintf("m%d", i))
			r["conv_id"] = listConv
			if i == 1 {
				r["orig_msg_id"] = int64(99)
			}
			id, err := store.Create(ctx, TableMessage, r)
			require.NoError(t, err)
			ids = append(ids, id)
		}

		rows, err := store.List(ctx, TableMessage, Filter{Eq("conv_id", listConv)}, ListOptions{})
		require.NoError(t, err)
		require.Len(t, rows, 3)
		for i, r := range rows {
			assert.EqualValues(t, ids[i], r["id"], "ordered by id by default")
		}

		rows, err = store.List(ctx, TableMessage, Filter{Eq("conv_id", listConv)}, ListOptions{Desc: true, Limit: 2})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.EqualValues(t, ids[2], rows[0]["id"])
		assert.EqualValues(t, ids[1], rows[1]["id"])

		rows, err = store.List(ctx, TableMessage, Filter{Eq("conv_id", listConv), IsNull("orig_msg_id")}, ListOptions{})
		require.NoError(t, err)
		assert.Len(t, rows, 2)

		first, err := store.First(ctx, TableMessage, Filter{Eq("conv_id", listConv), NotNull("orig_msg_id")}, ListOptions{})
		require.NoError(t, err)
		assert.EqualValues(t, ids[1], first["id"])

		first, err = store.First(ctx, TableMessage, Filter{Eq("conv_id", listConv)}, ListOptions{OrderBy: "content", Desc: true})
		require.NoError(t, err)
		assert.Equal(t, "m2", first["content"])
	})

	t.Run("Delete", func(t *testing.T) {
		id, err := store.Create(ctx, TableMessage, newMsg("del", "bye"))
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, TableMessage, id), "Delete should not return error")
		_, err = store.Get(ctx, TableMessage, id)
		assert.ErrorIs(t, err, domain.ErrNotFound, "Get after Delete should return ErrNotFound")
		_, err = store.GetByUID(ctx, TableMessage, uid("del"))
		assert.ErrorIs(t, err, domain.ErrNotFound)

		assert.NoError(t, store.Delete(ctx, TableMessage, id), "Delete is idempotent")
	})
}

// RunHubContract verifies that a Hub implementation delivers payloads to
// every subscriber of a topic and closes subscriptions with their context.
func RunHubContract(t *testing.T, hub Hub) {
	topic := fmt.Sprintf("contract.%d", time.Now().UnixNano())

	receive := func(t *testing.T, ch <-chan []byte) []byte {
		t.Helper()
		select {
		case msg, ok := <-ch:
			require.True(t, ok, "subscription closed unexpectedly")
			return msg
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for payload")
			return nil
		}
	}

	t.Run("Publish and Subscribe", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		a, err := hub.Subscribe(ctx, topic)
		require.NoError(t, err)
		b, err := hub.Subscribe(ctx, topic)
		require.NoError(t, err)

		require.NoError(t, hub.Publish(ctx, topic, []byte("ping")))
		assert.Equal(t, []byte("ping"), receive(t, a))
		assert.Equal(t, []byte("ping"), receive(t, b))
	})

	t.Run("Topics are isolated", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ch, err := hub.Subscribe(ctx, topic+".isolated")
		require.NoError(t, err)
		require.NoError(t, hub.Publish(ctx, topic+".other", []byte("nope")))
		require.NoError(t, hub.Publish(ctx, topic+".isolated", []byte("yes")))
		assert.Equal(t, []byte("yes"), receive(t, ch))
	})

	t.Run("Cancel closes subscription", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		ch, err := hub.Subscribe(ctx, topic+".cancel")
		require.NoError(t, err)
		cancel()

		assert.Eventually(t, func() bool {
			select {
			case _, ok := <-ch:
				return !ok
			default:
				return false
			}
		}, 2*time.Second, 10*time.Millisecond)
	})
}
