package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextSnapshot(t *testing.T, sub Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Snapshots():
		require.True(t, ok, "subscription closed unexpectedly")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func steppedClock(start time.Time) func() time.Time {
	cur := start
	return func() time.Time {
		cur = cur.Add(time.Second)
		return cur
	}
}

func TestMemoryStore_CreateAssignsIDAndCreatedAt(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	id, err := m.Create(ctx, Notes, map[string]any{"author": "Harry"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	docs, err := m.FetchFromServer(ctx, Notes, ByCreatedAt(Asc))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].ID)
	assert.Equal(t, "Harry", docs[0].Data["author"])
	assert.Contains(t, docs[0].Data, CreatedAtField)
}

func TestMemoryStore_FetchHonoursOrder(t *testing.T) {
	m := NewMemoryStore()
	m.now = steppedClock(time.Date(2026, 1, 23, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	first, _ := m.Create(ctx, Notes, map[string]any{"n": 1})
	second, _ := m.Create(ctx, Notes, map[string]any{"n": 2})

	asc, err := m.FetchFromServer(ctx, Notes, ByCreatedAt(Asc))
	require.NoError(t, err)
	desc, err := m.FetchFromServer(ctx, Notes, ByCreatedAt(Desc))
	require.NoError(t, err)

	assert.Equal(t, []string{first, second}, []string{asc[0].ID, asc[1].ID})
	assert.Equal(t, []string{second, first}, []string{desc[0].ID, desc[1].ID})
}

func TestMemoryStore_FetchOrdersByDataField(t *testing.T) {
	m := NewMemoryStore()
	m.now = steppedClock(time.Date(2026, 1, 23, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for _, date := range []string{"2026-01-25", "2026-01-23", "2026-01-24"} {
		require.NoError(t, m.Set(ctx, Weather, date, map[string]any{"date": date}))
	}

	byDate := Order{Field: "date", Direction: Asc}
	docs, err := m.FetchFromServer(ctx, Weather, byDate)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"2026-01-23", "2026-01-24", "2026-01-25"}, []string{docs[0].ID, docs[1].ID, docs[2].ID})

	byDate.Direction = Desc
	docs, err = m.FetchFromServer(ctx, Weather, byDate)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-25", docs[0].ID)
}

func TestMemoryStore_UpdateAndDeleteMissing(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	assert.ErrorIs(t, m.Update(ctx, Notes, "nope", map[string]any{"a": 1}), ErrNotFound)
	assert.ErrorIs(t, m.Delete(ctx, Notes, "nope"), ErrNotFound)
}

func TestMemoryStore_SubscribePushesFullListOnChange(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	sub, err := m.Subscribe(ctx, Comments, ByCreatedAt(Asc))
	require.NoError(t, err)
	defer sub.Close()

	initial := nextSnapshot(t, sub)
	assert.Empty(t, initial.Docs)
	assert.False(t, initial.FromCache)

	id, err := m.Create(ctx, Comments, map[string]any{"content": "hola"})
	require.NoError(t, err)

	snap := nextSnapshot(t, sub)
	require.Len(t, snap.Docs, 1)
	assert.Equal(t, id, snap.Docs[0].ID)

	require.NoError(t, m.Update(ctx, Comments, id, map[string]any{"content": "adios"}))
	snap = nextSnapshot(t, sub)
	require.Len(t, snap.Docs, 1)
	assert.Equal(t, "adios", snap.Docs[0].Data["content"])
}

func TestMemoryStore_SetKeepsCreateTime(t *testing.T) {
	m := NewMemoryStore()
	m.now = steppedClock(time.Date(2026, 1, 23, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, Weather, "2026-01-23", map[string]any{"tempMax": 20}))
	before, _ := m.FetchFromServer(ctx, Weather, ByCreatedAt(Asc))
	require.NoError(t, m.Set(ctx, Weather, "2026-01-23", map[string]any{"tempMax": 25}))
	after, _ := m.FetchFromServer(ctx, Weather, ByCreatedAt(Asc))

	require.Len(t, after, 1)
	assert.Equal(t, before[0].CreateTime, after[0].CreateTime)
	assert.EqualValues(t, 25, after[0].Data["tempMax"])
}

func TestDocument_DataTo(t *testing.T) {
	created := time.Date(2026, 1, 31, 15, 4, 5, 0, time.UTC)
	doc := Document{ID: "n1", Data: map[string]any{
		"author":    "Trent",
		"createdAt": created,
		"photos":    []any{map[string]any{"url": "https://x/1.jpg", "width": 1200}},
	}}

	var out struct {
		Author    string    `json:"author"`
		CreatedAt time.Time `json:"createdAt"`
		Photos    []struct {
			URL   string `json:"url"`
			Width int    `json:"width"`
		} `json:"photos"`
	}
	require.NoError(t, doc.DataTo(&out))

	assert.Equal(t, "Trent", out.Author)
	assert.True(t, created.Equal(out.CreatedAt))
	require.Len(t, out.Photos, 1)
	assert.Equal(t, 1200, out.Photos[0].Width)
}
