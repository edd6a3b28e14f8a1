package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jainuniversity/campus-portal/internal/models"
	"github.com/jainuniversity/campus-portal/pkg/errors"
)

// newMongoRepository connects to MONGODB_TEST_URI and skips when no server
// answers.
func newMongoRepository(t *testing.T) *MongoAccountRepository {
	t.Helper()

	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(2*time.Second))
	if err != nil {
		t.Skipf("mongo unavailable: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		t.Skipf("mongo unavailable: %v", err)
	}

	db := client.Database("campus_portal_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	repo := NewMongoAccountRepository(db)
	require.NoError(t, repo.EnsureIndexes(context.Background()))
	return repo
}

func TestMongoAccountRepository(t *testing.T) {
	ctx := context.Background()
	repo := newMongoRepository(t)

	account := newAccount(models.RoleAdmin, "Admin@Uni.edu")
	require.NoError(t, repo.Create(ctx, account))
	assert.ErrorIs(t, repo.Create(ctx, newAccount(models.RoleAdmin, "admin@uni.edu")), errors.ErrAccountExists)
	assert.ErrorIs(t, repo.Create(ctx, newAccount(models.RoleTeacher, "ADMIN@uni.edu")), errors.ErrAccountExists)

	found, err := repo.FindByEmail(ctx, models.RoleAdmin, "admin@uni.edu")
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)
	assert.Equal(t, "9876543210", found.Profile.Contact.Phone)

	_, err = repo.FindByEmail(ctx, models.RoleStudent, "admin@uni.edu")
	assert.ErrorIs(t, err, errors.ErrAccountNotFound)

	taken, err := repo.EmailTaken(ctx, "admin@uni.edu")
	require.NoError(t, err)
	assert.True(t, taken)

	now := time.Now().UTC().Truncate(time.Millisecond)
	var state models.Lockout
	for i := 0; i < 5; i++ {
		state, err = repo.RecordFailedLogin(ctx, models.RoleAdmin, account.ID, 5, 30*time.Minute, now)
		require.NoError(t, err)
	}
	assert.Equal(t, 5, state.LoginAttempts)
	assert.True(t, state.AccountLocked)
	require.NotNil(t, state.LockedUntil)
	assert.True(t, state.LockedUntil.Equal(now.Add(30*time.Minute)))

	require.NoError(t, repo.ResetLockout(ctx, models.RoleAdmin, account.ID))
	found, err = repo.FindByID(ctx, models.RoleAdmin, account.ID)
	require.NoError(t, err)
	assert.Zero(t, found.Lockout.LoginAttempts)
	assert.Nil(t, found.Lockout.LockedUntil)

	require.NoError(t, repo.SetActive(ctx, models.RoleAdmin, account.ID, false))
	assert.ErrorIs(t, repo.SetActive(ctx, models.RoleAdmin, "missing", false), errors.ErrAccountNotFound)
	assert.NoError(t, repo.Ping(ctx))
}
