package sagalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/storefront/internal/pkg/database"
)

func newRepo(t *testing.T) *GormRepository {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "sagas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.Migrate(db, Models()...))
	return NewGormRepository(db)
}

func TestRepositoryReadsBackOneSaga(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, NewEntry(ctx, "saga-1", StatusStarted, "", "", `{"lines":[]}`, nil)))
	require.NoError(t, repo.Save(ctx, NewEntry(ctx, "saga-2", StatusStarted, "", "", "", nil)))
	require.NoError(t, repo.Save(ctx, NewEntry(ctx, "saga-1", StatusStepDone, "Create_Order_Step", "order-1", "", nil)))
	require.NoError(t, repo.Save(ctx, NewEntry(ctx, "saga-1", StatusFailed, "Payment_Handoff_Step", "order-1", "", []string{"gateway down"})))

	latest, err := repo.Latest(ctx, "saga-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, latest.Status)
	assert.Equal(t, `["gateway down"]`, latest.ErrorMessages)

	history, err := repo.History(ctx, "saga-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, StatusStarted, history[0].Status)
	assert.Equal(t, "[]", history[0].ErrorMessages)

	id, err := repo.SagaIDForOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, "saga-1", id)
}

func TestRepositoryUnknownSaga(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	_, err := repo.Latest(ctx, "missing")
	assert.ErrorIs(t, err, ErrSagaNotFound)

	_, err = repo.SagaIDForOrder(ctx, "missing")
	assert.ErrorIs(t, err, ErrSagaNotFound)

	history, err := repo.History(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, history)
}
