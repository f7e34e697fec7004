package repositories

import (
	"encoding/json"
	goerrors "errors"
	"fmt"

	"babble/domain"
	"babble/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IUserRepository interface {
	CreateUser(name, email, hashedPassword string) (string, error)
	GetUserByEmail(email string) (domain.User, error)
	ListFriendLinks(email string) ([]domain.FriendLink, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// storedUser is the on-disk representation of a user record.
type storedUser struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Email        string             `json:"email"`
	PasswordHash string             `json:"password_hash"`
	Friends      []storedFriendLink `json:"friends"`
}

type storedFriendLink struct {
	PeerEmail string `json:"peer_email"`
	ChatID    string `json:"chat_id"`
}

func userKey(email string) []byte {
	return []byte("user:" + email)
}

// CreateUser persists a new user record. The existence check and the write
// happen in the same transaction, so a duplicate email is reported rather
// than overwritten even under concurrent registration.
func (u UserRepository) CreateUser(name, email, hashedPassword string) (string, error) {
	newID := uuid.New().String()
	record := storedUser{
		ID:           newID,
		Name:         name,
		Email:        email,
		PasswordHash: hashedPassword,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		key := userKey(email)
		if _, err := txn.Get(key); err == nil {
			return errors.ErrUserAlreadyExists
		}
		return txn.Set(key, data)
	})

	return newID, err
}

func (u UserRepository) GetUserByEmail(email string) (domain.User, error) {
	var record storedUser

	err := u.db.View(func(txn *badger.Txn) error {
		var err error
		record, err = getUser(txn, email)
		return err
	})
	if err != nil {
		return domain.User{}, err
	}

	return toUser(record), nil
}

func (u UserRepository) ListFriendLinks(email string) ([]domain.FriendLink, error) {
	user, err := u.GetUserByEmail(email)
	if err != nil {
		return nil, err
	}
	return user.Friends, nil
}

// getUser reads a user record within an open transaction, so the chat
// resolver can load both members atomically with chat creation.
func getUser(txn *badger.Txn, email string) (storedUser, error) {
	item, err := txn.Get(userKey(email))
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return storedUser{}, errors.ErrUserNotFound
	}
	if err != nil {
		return storedUser{}, err
	}

	var record storedUser
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	})
	return record, err
}

func putUser(txn *badger.Txn, record storedUser) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set(userKey(record.Email), data)
}

// addFriendLink appends a friend link to a user record inside an open
// transaction. Re-adding an existing link is a no-op.
func addFriendLink(txn *badger.Txn, email string, link domain.FriendLink) error {
	record, err := getUser(txn, email)
	if err != nil {
		return err
	}

	user := toUser(record)
	if !user.AddFriend(link) {
		return nil
	}

	record.Friends = append(record.Friends, storedFriendLink{
		PeerEmail: link.PeerEmail,
		ChatID:    link.ChatID,
	})
	return putUser(txn, record)
}

func toUser(record storedUser) domain.User {
	user := domain.User{
		ID:           record.ID,
		Name:         record.Name,
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
	}
	for _, f := range record.Friends {
		user.Friends = append(user.Friends, domain.FriendLink{
			PeerEmail: f.PeerEmail,
			ChatID:    f.ChatID,
		})
	}
	return user
}
