package repositories

import (
	"encoding/json"
	goerrors "errors"
	"fmt"
	"log/slog"
	"time"

	"babble/domain"
	"babble/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// maxResolveAttempts bounds the create-then-fallback-to-lookup retry when
// two resolvers race on the same pair. One retry is enough in practice;
// the margin covers unrelated transaction conflicts.
const maxResolveAttempts = 5

type IChatRepository interface {
	ResolveChat(a, b string) (string, bool, error)
	GetChat(chatID string) (domain.Chat, error)
	AppendMessage(message domain.Message) (domain.Message, error)
	GetMessages(chatID string) ([]domain.Message, error)
}

type ChatRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewChatRepository(db *badger.DB, log *slog.Logger, limitMessages *int) ChatRepository {
	return ChatRepository{db: db, log: log, limitMessages: limitMessages}
}

type storedChat struct {
	ID      string    `json:"id"`
	Members [2]string `json:"members"`
}

type storedMessage struct {
	ID     string `json:"id"`
	ChatID string `json:"chat_id"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
	At     int64  `json:"at"`
}

func chatKey(chatID string) []byte {
	return []byte("chat:" + chatID)
}

// pairKey maps an unordered member pair to the single chat owning it.
// Uniqueness of this key is the sole concurrency-control mechanism
// protecting the one-chat-per-pair invariant.
func pairKey(a, b string) []byte {
	lo, hi := domain.SortedPair(a, b)
	return []byte("pair:" + lo + "|" + hi)
}

// ResolveChat returns the chat for the pair {a, b}, creating it if absent.
// The lookup, the chat record, the pair key and both friend-link updates
// share one transaction: either all writes commit or none are visible.
// A commit conflict means a concurrent resolver won the race; the retry
// then finds the winner's chat through the pair key.
func (r ChatRepository) ResolveChat(a, b string) (string, bool, error) {
	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		var chatID string
		var created bool

		err := r.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(pairKey(a, b))
			if err == nil {
				created = false
				return item.Value(func(val []byte) error {
					chatID = string(val)
					return nil
				})
			}
			if !goerrors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			// Both members must already exist; creating counterparties is
			// the caller's policy decision, never the resolver's.
			if _, err := getUser(txn, a); err != nil {
				return err
			}
			if _, err := getUser(txn, b); err != nil {
				return err
			}

			chatID = uuid.New().String()
			created = true

			lo, hi := domain.SortedPair(a, b)
			data, err := json.Marshal(storedChat{ID: chatID, Members: [2]string{lo, hi}})
			if err != nil {
				return fmt.Errorf("marshal failed: %w", err)
			}
			if err := txn.Set(chatKey(chatID), data); err != nil {
				return err
			}
			if err := txn.Set(pairKey(a, b), []byte(chatID)); err != nil {
				return err
			}

			if err := addFriendLink(txn, a, domain.FriendLink{PeerEmail: b, ChatID: chatID}); err != nil {
				return err
			}
			return addFriendLink(txn, b, domain.FriendLink{PeerEmail: a, ChatID: chatID})
		})

		if goerrors.Is(err, badger.ErrConflict) {
			r.log.Debug("Chat resolution conflict, retrying", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return "", false, err
		}
		return chatID, created, nil
	}
	return "", false, fmt.Errorf("chat resolution did not converge: %w", badger.ErrConflict)
}

func (r ChatRepository) GetChat(chatID string) (domain.Chat, error) {
	var record storedChat
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chatKey(chatID))
		if goerrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrChatNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		return domain.Chat{}, err
	}
	return domain.Chat{ID: record.ID, Members: record.Members}, nil
}

// AppendMessage persists a message and stamps it with the persistence time.
// The key is "msg:{chat_id}:{timestamp_padded}:{uuid}" so that:
//  1. Lexicographical iteration yields persistence order (19-digit padding).
//  2. The UUID disambiguates two messages landing on the same nanosecond.
//
// A single attempt is made; storage failure is the caller's to report.
func (r ChatRepository) AppendMessage(message domain.Message) (domain.Message, error) {
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	message.At = time.Now().UTC()

	key := fmt.Sprintf("msg:%s:%019d:%s", message.ChatID, message.At.UnixNano(), message.ID)
	data, err := json.Marshal(fromMessage(message))
	if err != nil {
		return domain.Message{}, err
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

// GetMessages returns a chat's messages in append order. An unknown chat
// yields an empty slice, not an error. The configured limit, when set,
// caps how much history a single call returns.
func (r ChatRepository) GetMessages(chatID string) ([]domain.Message, error) {
	var byteMessages [][]byte

	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", chatID))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if r.limitMessages != nil && len(byteMessages) == *r.limitMessages {
				r.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *r.limitMessages))
				break
			}
			err := it.Item().Value(func(value []byte) error {
				byteMessages = append(byteMessages, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(byteMessages))
	for _, b := range byteMessages {
		var record storedMessage
		if err := json.Unmarshal(b, &record); err != nil {
			return nil, err
		}
		message, err := toMessage(record)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func fromMessage(message domain.Message) storedMessage {
	return storedMessage{
		ID:     message.ID.String(),
		ChatID: message.ChatID,
		Sender: message.Sender,
		Text:   message.Text,
		At:     message.At.UnixNano(),
	}
}

func toMessage(record storedMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(record.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:     parsedID,
		ChatID: record.ChatID,
		Sender: record.Sender,
		Text:   record.Text,
		At:     time.Unix(0, record.At).UTC(),
	}, nil
}
