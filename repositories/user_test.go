package repositories

import (
	"testing"

	"babble/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func Test_Create_And_Get_User(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewUserRepository(db)
	id, err := repository.CreateUser("Alice", "alice@example.com", "$argon2id$fake")
	req.NoError(err)
	req.NotEmpty(id)

	user, err := repository.GetUserByEmail("alice@example.com")
	req.NoError(err)
	req.Equal(id, user.ID)
	req.Equal("Alice", user.Name)
	req.Equal("alice@example.com", user.Email)
	req.Equal("$argon2id$fake", user.PasswordHash)
	req.Empty(user.Friends)
}

func Test_Duplicate_Registration(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewUserRepository(db)
	_, err := repository.CreateUser("Alice", "alice@example.com", "hash")
	req.NoError(err)

	_, err = repository.CreateUser("Imposter", "alice@example.com", "hash2")
	req.ErrorIs(err, errors.ErrUserAlreadyExists)

	// The original record must be untouched.
	user, err := repository.GetUserByEmail("alice@example.com")
	req.NoError(err)
	req.Equal("Alice", user.Name)
}

func Test_Get_Unknown_User(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewUserRepository(db)
	_, err := repository.GetUserByEmail("ghost@example.com")
	req.ErrorIs(err, errors.ErrUserNotFound)

	_, err = repository.ListFriendLinks("ghost@example.com")
	req.ErrorIs(err, errors.ErrUserNotFound)
}
