package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberfriends/companion-engine/internal/domain/impact"
	"github.com/fiberfriends/companion-engine/internal/domain/progress"
	"github.com/fiberfriends/companion-engine/internal/domain/shared"
)

func TestErrorHelpers(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505"}
	serial := &pgconn.PgError{Code: "40001"}
	deadlock := &pgconn.PgError{Code: "40P01"}

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(serial))
	assert.True(t, IsSerializationFailure(serial))
	assert.True(t, IsSerializationFailure(deadlock))
	assert.False(t, IsSerializationFailure(errors.New("boom")))

	assert.True(t, shared.IsConflict(translate("op", serial)))
	assert.True(t, shared.IsUnavailable(translate("op", errors.New("dial tcp: refused"))))
	assert.True(t, shared.IsUnavailable(translate("op", context.DeadlineExceeded)))
	assert.NoError(t, translate("op", nil))

	domainErr := shared.NewDomainError("progress", "x", shared.ErrInvalidInput, "bad")
	assert.Same(t, domainErr, translate("op", domainErr))
}

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "db"
	cfg.Password = "secret"
	assert.Contains(t, cfg.DSN(), "host=db")
	assert.Contains(t, cfg.DSN(), "dbname=companion")

	cfg.URL = "postgres://u:p@h:5432/d"
	assert.Equal(t, "postgres://u:p@h:5432/d", cfg.DSN())
}

func TestGetMigrations_Ordered(t *testing.T) {
	migs := GetMigrations()
	for i, m := range migs {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL)
		assert.NotEmpty(t, m.DownSQL)
	}
}

// testConnection connects to TEST_DATABASE_URL and migrates, or skips.
func testConnection(t *testing.T) *Connection {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	conn, err := NewConnectionFromURL(ctx, url)
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	_, err = NewMigrator(conn).Migrate(ctx)
	require.NoError(t, err)
	return conn
}

func TestProgressRepository_ConcurrentGrants(t *testing.T) {
	conn := testConnection(t)
	ctx := context.Background()
	repo := NewProgressRepository(conn, nil)
	table := progress.DefaultTierTable()
	userID := "pg-test-" + uuid.NewString()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Apply(ctx, userID, func(s *progress.State) (*progress.PointGrant, error) {
				g, err := progress.NewPointGrant(userID, "test", 30, progress.CategoryEngagement, time.Now())
				if err != nil {
					return nil, err
				}
				s.ApplyGrant(table, g)
				return g, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st, err := repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 300, st.TotalPoints)
	assert.Equal(t, table.Resolve(300), st.CurrentTier)
	assert.True(t, st.HasUnlocked(st.CurrentTier))

	grants, err := repo.ListGrants(ctx, userID, shared.NewPagination(1, 100))
	require.NoError(t, err)
	assert.Len(t, grants, 10)

	prev, err := repo.Reset(ctx, userID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 300, prev.TotalPoints)
}

func TestProgressRepository_CallbackErrorRollsBack(t *testing.T) {
	conn := testConnection(t)
	ctx := context.Background()
	repo := NewProgressRepository(conn, nil)
	userID := "pg-test-" + uuid.NewString()

	_, err := repo.Apply(ctx, userID, func(*progress.State) (*progress.PointGrant, error) {
		return nil, progress.ErrNonPositivePoints
	})
	assert.ErrorIs(t, err, progress.ErrNonPositivePoints)

	_, err = repo.Get(ctx, userID)
	assert.ErrorIs(t, err, progress.ErrProgressNotFound)
}

func TestProgressRepository_DuplicateGrantRollsBack(t *testing.T) {
	conn := testConnection(t)
	ctx := context.Background()
	repo := NewProgressRepository(conn, nil)
	userID := "pg-test-" + uuid.NewString()
	table := progress.DefaultTierTable()
	id := progress.GrantIDFor(userID, "once")

	keyed := func(s *progress.State) (*progress.PointGrant, error) {
		g, err := progress.NewPointGrant(userID, "test", 10, progress.CategoryEngagement, time.Now())
		if err != nil {
			return nil, err
		}
		g.ID = id
		s.ApplyGrant(table, g)
		return g, nil
	}

	_, err := repo.Apply(ctx, userID, keyed)
	require.NoError(t, err)
	_, err = repo.Apply(ctx, userID, keyed)
	assert.ErrorIs(t, err, progress.ErrDuplicateGrant)

	got, err := repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.TotalPoints)
}

func TestAchievementRepository_UnlockOnce(t *testing.T) {
	conn := testConnection(t)
	ctx := context.Background()
	repo := NewAchievementRepository(conn)
	a := &impact.Achievement{UserID: "pg-test-" + uuid.NewString(), AchievementID: "steady_flame", Name: "Steady Flame", Category: "consistency", UnlockedAt: time.Now()}

	first, err := repo.Unlock(ctx, a)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := repo.Unlock(ctx, a)
	require.NoError(t, err)
	assert.False(t, second)
}
