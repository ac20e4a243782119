package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/calfort/skiff/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func createTestBuild(t *testing.T, store Store) *domain.Build {
	t.Helper()
	build, err := domain.NewBuild("Weather Bot", "/srv/projects/weather-bot", "")
	require.NoError(t, err)

	err = store.CreateBuild(context.Background(), build)
	require.NoError(t, err)
	return build
}

// =============================================================================
// Build Tests
// =============================================================================

func TestCreateBuild_Success(t *testing.T) {
	store := setupTestStore(t)
	build := createTestBuild(t, store)

	got, err := store.GetBuild(context.Background(), build.ID)
	require.NoError(t, err)
	assert.Equal(t, build.ID, got.ID)
	assert.Equal(t, "Weather Bot", got.ProjectName)
	assert.Equal(t, "weather-bot", got.Slug)
	assert.Equal(t, "weather-bot:latest", got.Tag)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.FinishedAt)
}

func TestCreateBuild_DuplicateID(t *testing.T) {
	store := setupTestStore(t)
	build := createTestBuild(t, store)

	err := store.CreateBuild(context.Background(), build)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestGetBuild_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetBuild(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateBuild_PersistsTransition(t *testing.T) {
	store := setupTestStore(t)
	build := createTestBuild(t, store)

	require.NoError(t, build.Transition(domain.StatusBuilding))
	build.ManifestDigest = "sha256:abc"
	require.NoError(t, store.UpdateBuild(context.Background(), build))

	require.NoError(t, build.Transition(domain.StatusSucceeded))
	build.ImageID = "sha256:f00d"
	require.NoError(t, store.UpdateBuild(context.Background(), build))

	got, err := store.GetBuild(context.Background(), build.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, got.Status)
	assert.Equal(t, "sha256:abc", got.ManifestDigest)
	assert.Equal(t, "sha256:f00d", got.ImageID)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)
}

func TestUpdateBuild_NotFound(t *testing.T) {
	store := setupTestStore(t)
	build, err := domain.NewBuild("ghost", "/tmp/ghost", "")
	require.NoError(t, err)

	err = store.UpdateBuild(context.Background(), build)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateBuild_StaleWriteCannotOverwriteCanceled(t *testing.T) {
	store := setupTestStore(t)
	build := createTestBuild(t, store)

	// Worker claims the build.
	require.NoError(t, build.Transition(domain.StatusBuilding))
	require.NoError(t, store.UpdateBuild(context.Background(), build))

	// A cancel lands while the worker is still running.
	canceled := *build
	require.NoError(t, canceled.Transition(domain.StatusCanceled))
	require.NoError(t, store.UpdateBuild(context.Background(), &canceled))

	// The worker finishes from its stale copy; the terminal canceled state
	// must survive.
	require.NoError(t, build.Transition(domain.StatusSucceeded))
	err := store.UpdateBuild(context.Background(), build)
	assert.ErrorIs(t, err, ErrConflict)

	got, err := store.GetBuild(context.Background(), build.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, got.Status)
}

func TestUpdateBuild_RetryFromFailedAllowed(t *testing.T) {
	store := setupTestStore(t)
	build := createTestBuild(t, store)

	require.NoError(t, build.Transition(domain.StatusBuilding))
	require.NoError(t, store.UpdateBuild(context.Background(), build))
	require.NoError(t, build.Fail("install error"))
	require.NoError(t, store.UpdateBuild(context.Background(), build))

	require.NoError(t, build.Transition(domain.StatusBuilding))
	require.NoError(t, store.UpdateBuild(context.Background(), build))

	got, err := store.GetBuild(context.Background(), build.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBuilding, got.Status)
}

func TestDeleteBuild_Success(t *testing.T) {
	store := setupTestStore(t)
	build := createTestBuild(t, store)

	require.NoError(t, store.DeleteBuild(context.Background(), build.ID))

	_, err := store.GetBuild(context.Background(), build.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteBuild_NotFound(t *testing.T) {
	store := setupTestStore(t)

	err := store.DeleteBuild(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListBuildsByStatus_OldestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first, err := domain.NewBuild("alpha", "/srv/alpha", "")
	require.NoError(t, err)
	first.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, store.CreateBuild(ctx, first))

	second, err := domain.NewBuild("beta", "/srv/beta", "")
	require.NoError(t, err)
	second.CreatedAt = time.Now().UTC().Add(-1 * time.Hour)
	require.NoError(t, store.CreateBuild(ctx, second))

	pending, err := store.ListBuildsByStatus(ctx, domain.StatusPending, DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
}

func TestGetLatestSucceededBuild(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	older, err := domain.NewBuild("weather bot", "/srv/weather-bot", "")
	require.NoError(t, err)
	require.NoError(t, older.Transition(domain.StatusBuilding))
	require.NoError(t, older.Transition(domain.StatusSucceeded))
	past := time.Now().UTC().Add(-time.Hour)
	older.FinishedAt = &past
	older.ImageID = "sha256:old"
	require.NoError(t, store.CreateBuild(ctx, older))

	newer, err := domain.NewBuild("weather bot", "/srv/weather-bot", "")
	require.NoError(t, err)
	require.NoError(t, newer.Transition(domain.StatusBuilding))
	require.NoError(t, newer.Transition(domain.StatusSucceeded))
	newer.ImageID = "sha256:new"
	require.NoError(t, store.CreateBuild(ctx, newer))

	got, err := store.GetLatestSucceededBuild(ctx, "weather-bot")
	require.NoError(t, err)
	assert.Equal(t, "sha256:new", got.ImageID)
}

func TestGetLatestSucceededBuild_NoneSucceeded(t *testing.T) {
	store := setupTestStore(t)
	createTestBuild(t, store)

	_, err := store.GetLatestSucceededBuild(context.Background(), "weather-bot")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListFinishedBuildsBefore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	old, err := domain.NewBuild("stale", "/srv/stale", "")
	require.NoError(t, err)
	require.NoError(t, old.Transition(domain.StatusBuilding))
	require.NoError(t, old.Fail("pip install failed"))
	past := time.Now().UTC().Add(-48 * time.Hour)
	old.FinishedAt = &past
	require.NoError(t, store.CreateBuild(ctx, old))

	fresh, err := domain.NewBuild("fresh", "/srv/fresh", "")
	require.NoError(t, err)
	require.NoError(t, fresh.Transition(domain.StatusBuilding))
	require.NoError(t, fresh.Transition(domain.StatusSucceeded))
	require.NoError(t, store.CreateBuild(ctx, fresh))

	// Still pending, must never be pruned.
	createTestBuild(t, store)

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	got, err := store.ListFinishedBuildsBefore(ctx, cutoff, DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, old.ID, got[0].ID)
}

// =============================================================================
// Step Event Tests
// =============================================================================

func TestCreateStepEvent_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	build := createTestBuild(t, store)

	for _, step := range domain.PipelineSteps() {
		err := store.CreateStepEvent(ctx, &domain.StepEvent{
			BuildID:    build.ID,
			Step:       step,
			Success:    true,
			RecordedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	events, err := store.ListStepEvents(ctx, build.ID)
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, domain.StepRender, events[0].Step)
	assert.Equal(t, domain.StepVerify, events[4].Step)
	for _, ev := range events {
		assert.True(t, ev.Success)
	}
}

func TestCreateStepEvent_UnknownBuild(t *testing.T) {
	store := setupTestStore(t)

	err := store.CreateStepEvent(context.Background(), &domain.StepEvent{
		BuildID:    "missing",
		Step:       domain.StepBuild,
		Success:    false,
		Message:    "boom",
		RecordedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrForeignKey)
}

func TestDeleteBuild_CascadesSteps(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	build := createTestBuild(t, store)

	require.NoError(t, store.CreateStepEvent(ctx, &domain.StepEvent{
		BuildID:    build.ID,
		Step:       domain.StepRender,
		Success:    true,
		RecordedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.DeleteBuild(ctx, build.ID))

	events, err := store.ListStepEvents(ctx, build.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

// =============================================================================
// Build Log Tests
// =============================================================================

func TestAppendBuildLog_PreservesOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	build := createTestBuild(t, store)

	require.NoError(t, store.AppendBuildLog(ctx, build.ID, []string{
		"Step 1/9 : FROM python:3.10-slim",
		"Step 2/9 : WORKDIR /app",
	}))
	require.NoError(t, store.AppendBuildLog(ctx, build.ID, []string{
		"Step 3/9 : COPY requirements.txt .",
	}))

	lines, err := store.GetBuildLog(ctx, build.ID)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "Step 1/9 : FROM python:3.10-slim", lines[0])
	assert.Equal(t, "Step 3/9 : COPY requirements.txt .", lines[2])
}

func TestAppendBuildLog_EmptyIsNoop(t *testing.T) {
	store := setupTestStore(t)
	build := createTestBuild(t, store)

	require.NoError(t, store.AppendBuildLog(context.Background(), build.ID, nil))

	lines, err := store.GetBuildLog(context.Background(), build.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

// =============================================================================
// API Token Tests
// =============================================================================

func TestCreateAPIToken_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	token, err := domain.NewAPIToken("ci", "$2a$10$fakehash")
	require.NoError(t, err)
	require.NoError(t, store.CreateAPIToken(ctx, token))

	got, err := store.GetAPIToken(ctx, token.ID)
	require.NoError(t, err)
	assert.Equal(t, "ci", got.Name)
	assert.Equal(t, "$2a$10$fakehash", got.Hash)
}

func TestCreateAPIToken_DuplicateName(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first, err := domain.NewAPIToken("ci", "hash-1")
	require.NoError(t, err)
	require.NoError(t, store.CreateAPIToken(ctx, first))

	second, err := domain.NewAPIToken("ci", "hash-2")
	require.NoError(t, err)
	err = store.CreateAPIToken(ctx, second)
	assert.ErrorIs(t, err, ErrDuplicateToken)
}

func TestDeleteAPIToken(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	token, err := domain.NewAPIToken("ci", "hash")
	require.NoError(t, err)
	require.NoError(t, store.CreateAPIToken(ctx, token))
	require.NoError(t, store.DeleteAPIToken(ctx, token.ID))

	tokens, err := store.ListAPITokens(ctx)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

// =============================================================================
// Transaction Tests
// =============================================================================

func TestWithTx_Commit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	build, err := domain.NewBuild("tx bot", "/srv/tx-bot", "")
	require.NoError(t, err)

	err = store.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateBuild(ctx, build); err != nil {
			return err
		}
		return tx.CreateStepEvent(ctx, &domain.StepEvent{
			BuildID:    build.ID,
			Step:       domain.StepRender,
			Success:    true,
			RecordedAt: time.Now().UTC(),
		})
	})
	require.NoError(t, err)

	got, err := store.GetBuild(ctx, build.ID)
	require.NoError(t, err)
	assert.Equal(t, build.ID, got.ID)
}

func TestWithTx_RollbackOnError(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	build, err := domain.NewBuild("tx bot", "/srv/tx-bot", "")
	require.NoError(t, err)

	sentinel := errors.New("abort")
	err = store.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateBuild(ctx, build); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	_, err = store.GetBuild(ctx, build.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
