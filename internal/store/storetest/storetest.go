// Package storetest provides a behavioral test suite shared by every store.Store backend.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/raphaelgruber/csbot-go/internal/models"
	"github.com/raphaelgruber/csbot-go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run exercises the store contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGetSession", func(t *testing.T) { testCreateAndGetSession(t, newStore(t)) })
	t.Run("GetMissingSession", func(t *testing.T) { testGetMissingSession(t, newStore(t)) })
	t.Run("RecentMessagesOrder", func(t *testing.T) { testRecentMessagesOrder(t, newStore(t)) })
	t.Run("RecentMessagesIdempotent", func(t *testing.T) { testRecentMessagesIdempotent(t, newStore(t)) })
	t.Run("RecentMessagesIsolated", func(t *testing.T) { testRecentMessagesIsolated(t, newStore(t)) })
	t.Run("ListMessagesPaging", func(t *testing.T) { testListMessagesPaging(t, newStore(t)) })
	t.Run("EscalatedFlag", func(t *testing.T) { testEscalatedFlag(t, newStore(t)) })
	t.Run("FAQRoundTrip", func(t *testing.T) { testFAQRoundTrip(t, newStore(t)) })
}

func testCreateAndGetSession(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := "user-42"

	created, err := s.CreateSession(ctx, &user, map[string]any{"channel": "web"})
	require.NoError(t, err)

	_, err = uuid.Parse(created.ID)
	assert.NoError(t, err, "session IDs are UUIDs")
	assert.False(t, created.CreatedAt.IsZero())

	got, err := s.GetSession(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	require.NotNil(t, got.UserID)
	assert.Equal(t, user, *got.UserID)
	assert.Equal(t, "web", got.Metadata["channel"])

	anon, err := s.CreateSession(ctx, nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, created.ID, anon.ID)
	assert.Nil(t, anon.UserID)
	assert.NotNil(t, anon.Metadata)
}

func testGetMissingSession(t *testing.T, s store.Store) {
	_, err := s.GetSession(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func appendN(t *testing.T, s store.Store, sessionID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		_, err := s.AppendMessage(context.Background(), sessionID, role, fmt.Sprintf("m%d", i), false)
		require.NoError(t, err)
	}
}

func testRecentMessagesOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, nil, nil)
	require.NoError(t, err)
	appendN(t, s, sess.ID, 5)

	got, err := s.RecentMessages(ctx, sess.ID, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "m2", got[0].Content)
	assert.Equal(t, "m3", got[1].Content)
	assert.Equal(t, "m4", got[2].Content)
	assert.Equal(t, models.RoleUser, got[2].Role)

	all, err := s.RecentMessages(ctx, sess.ID, 50)
	require.NoError(t, err)
	assert.Len(t, all, 5, "limit larger than history returns everything")

	none, err := s.RecentMessages(ctx, sess.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testRecentMessagesIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, nil, nil)
	require.NoError(t, err)
	appendN(t, s, sess.ID, 4)

	first, err := s.RecentMessages(ctx, sess.ID, 3)
	require.NoError(t, err)
	second, err := s.RecentMessages(ctx, sess.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func testRecentMessagesIsolated(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, err := s.CreateSession(ctx, nil, nil)
	require.NoError(t, err)
	b, err := s.CreateSession(ctx, nil, nil)
	require.NoError(t, err)

	appendN(t, s, a.ID, 2)
	appendN(t, s, b.ID, 3)

	got, err := s.RecentMessages(ctx, a.ID, 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	for _, m := range got {
		assert.Equal(t, a.ID, m.SessionID)
	}

	empty, err := s.RecentMessages(ctx, uuid.NewString(), 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testListMessagesPaging(t *testing.T, s store.Store) {
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, nil, nil)
	require.NoError(t, err)
	appendN(t, s, sess.ID, 5)

	page, err := s.ListMessages(ctx, sess.ID, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m1", page[0].Content)
	assert.Equal(t, "m2", page[1].Content)

	tail, err := s.ListMessages(ctx, sess.ID, 10, 4)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "m4", tail[0].Content)

	past, err := s.ListMessages(ctx, sess.ID, 10, 99)
	require.NoError(t, err)
	assert.Empty(t, past)
}

func testEscalatedFlag(t *testing.T, s store.Store) {
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, nil, nil)
	require.NoError(t, err)

	msg, err := s.AppendMessage(ctx, sess.ID, models.RoleAssistant, "contact support", true)
	require.NoError(t, err)
	assert.True(t, msg.Escalated)
	assert.Positive(t, msg.ID)

	got, err := s.RecentMessages(ctx, sess.ID, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Escalated)
	assert.Equal(t, msg.ID, got[0].ID)
}

func testFAQRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()

	count, err := s.CountFAQs(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	stored, err := s.AppendFAQs(ctx, []models.FAQEntry{
		{Question: "q1", Answer: "a1", Embedding: []float32{1, 0}, Metadata: map[string]any{"topic": "auth"}},
		{Question: "q2", Answer: "a2", Embedding: []float32{0, 1}},
	})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Less(t, stored[0].ID, stored[1].ID, "IDs follow input order")

	more, err := s.AppendFAQs(ctx, []models.FAQEntry{{Question: "q3", Answer: "a3", Embedding: []float32{0.5, 0.5}}})
	require.NoError(t, err)
	assert.Less(t, stored[1].ID, more[0].ID)

	all, err := s.ListFAQs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "q1", all[0].Question)
	assert.Equal(t, "q3", all[2].Question)
	assert.Equal(t, []float32{1, 0}, all[0].Embedding)
	assert.Equal(t, "auth", all[0].Metadata["topic"])

	count, err = s.CountFAQs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
