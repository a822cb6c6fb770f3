//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/notify-garden/internal/domain"
	"github.com/bissquit/notify-garden/internal/notifications"
	notificationspostgres "github.com/bissquit/notify-garden/internal/notifications/postgres"
)

// These tests hit the real schema directly, bypassing the HTTP surface.
// No delivery job is created for the rows, so the shared worker never
// touches them.

func insertNotification(t *testing.T, repo *notificationspostgres.Repository, userID string, status domain.Status) *domain.Notification {
	t.Helper()

	n := &domain.Notification{
		ID:      uuid.NewString(),
		UserID:  userID,
		Title:   "t",
		Body:    "b",
		Channel: domain.ChannelInApp,
		Status:  status,
	}
	require.NoError(t, repo.Create(context.Background(), n))
	return n
}

func TestRepository_UpdateStatus_Conditional(t *testing.T) {
	repo := notificationspostgres.NewRepository(testDB)
	ctx := context.Background()

	n := insertNotification(t, repo, "repo-user-1", domain.StatusFailed)

	updated, err := repo.UpdateStatus(ctx, n.ID, domain.StatusPending, "repo-user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, updated.Status)
	assert.True(t, updated.UpdatedAt.After(n.CreatedAt) || updated.UpdatedAt.Equal(n.CreatedAt))

	// Zero matched rows surfaces as not found, whether the id is wrong
	// or the owner is.
	_, err = repo.UpdateStatus(ctx, n.ID, domain.StatusPending, "someone-else")
	assert.ErrorIs(t, err, notifications.ErrNotFound)

	_, err = repo.UpdateStatus(ctx, uuid.NewString(), domain.StatusPending, "repo-user-1")
	assert.ErrorIs(t, err, notifications.ErrNotFound)
}

func TestRepository_SetStatus(t *testing.T) {
	repo := notificationspostgres.NewRepository(testDB)
	ctx := context.Background()

	n := insertNotification(t, repo, "repo-user-2", domain.StatusPending)

	require.NoError(t, repo.SetStatus(ctx, n.ID, domain.StatusSent))

	got, err := repo.GetByIDInternal(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, got.Status)

	err = repo.SetStatus(ctx, uuid.NewString(), domain.StatusSent)
	assert.ErrorIs(t, err, notifications.ErrNotFound)
}

func TestRepository_GetByID_Scoping(t *testing.T) {
	repo := notificationspostgres.NewRepository(testDB)
	ctx := context.Background()

	n := insertNotification(t, repo, "repo-user-3", domain.StatusPending)

	got, err := repo.GetByID(ctx, n.ID, "repo-user-3")
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)

	_, err = repo.GetByID(ctx, n.ID, "repo-user-other")
	assert.ErrorIs(t, err, notifications.ErrNotFound)
}

func TestRepository_ListByUser_Ordering(t *testing.T) {
	repo := notificationspostgres.NewRepository(testDB)
	ctx := context.Background()

	first := insertNotification(t, repo, "repo-user-4", domain.StatusSent)
	time.Sleep(10 * time.Millisecond)
	second := insertNotification(t, repo, "repo-user-4", domain.StatusPending)

	items, err := repo.ListByUser(ctx, "repo-user-4", notifications.ListParams{Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, second.ID, items[0].ID, "newest first")
	assert.Equal(t, first.ID, items[1].ID)

	items, err = repo.ListByUser(ctx, "repo-user-4", notifications.ListParams{
		Status: domain.StatusSent,
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, first.ID, items[0].ID)
}

func TestRepository_MarkAllReadUnread(t *testing.T) {
	repo := notificationspostgres.NewRepository(testDB)
	ctx := context.Background()

	insertNotification(t, repo, "repo-user-5", domain.StatusSent)
	insertNotification(t, repo, "repo-user-5", domain.StatusSent)

	updated, err := repo.MarkAllRead(ctx, "repo-user-5")
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	// Already read rows are untouched.
	updated, err = repo.MarkAllRead(ctx, "repo-user-5")
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated)

	updated, err = repo.MarkAllUnread(ctx, "repo-user-5")
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)
}

func TestRepository_Delete(t *testing.T) {
	repo := notificationspostgres.NewRepository(testDB)
	ctx := context.Background()

	n := insertNotification(t, repo, "repo-user-6", domain.StatusPending)

	require.NoError(t, repo.Delete(ctx, n.ID, "repo-user-6"))
	assert.ErrorIs(t, repo.Delete(ctx, n.ID, "repo-user-6"), notifications.ErrNotFound)
}
