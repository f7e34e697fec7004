package services

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"time"

	"babble/auth"
	"babble/domain"
	"babble/errors"
	"babble/moderation"
	"babble/repositories"
	"babble/search"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"
)

// Delivery describes a successfully persisted message, ready for fan-out.
type Delivery struct {
	From   string
	To     string
	Text   string
	ChatID string
	At     time.Time
}

// Friend is a peer profile snapshot joined with the shared chat identity.
type Friend struct {
	Name   string
	Email  string
	ChatID string
}

type IChatService interface {
	SendMessage(ctx context.Context, from, to, text string) (Delivery, error)
	AddFriend(userEmail, friendEmail, friendName string) (string, bool, error)
	GetMessages(chatID string) ([]domain.Message, error)
	GetFriends(email string) ([]Friend, error)
	SearchMessages(ctx context.Context, chatID, query string, limit int) ([]search.Result, error)
}

type ChatService struct {
	users     repositories.IUserRepository
	chats     repositories.IChatRepository
	moderator *moderation.Moderator // nil disables moderation
	index     *search.MessageIndex  // nil disables search indexing
	log       *slog.Logger
}

func NewChatService(users repositories.IUserRepository, chats repositories.IChatRepository,
	moderator *moderation.Moderator, index *search.MessageIndex, log *slog.Logger) *ChatService {
	return &ChatService{users: users, chats: chats, moderator: moderator, index: index, log: log}
}

// SendMessage routes one outbound message: verify both parties, resolve the
// pair's chat, persist, then hand the delivery back for broadcast.
// The send path never creates users: an unknown counterparty is an error
// and nothing is persisted.
func (s *ChatService) SendMessage(_ context.Context, from, to, text string) (Delivery, error) {
	if _, err := s.users.GetUserByEmail(from); err != nil {
		return Delivery{}, err
	}
	if _, err := s.users.GetUserByEmail(to); err != nil {
		if goerrors.Is(err, errors.ErrUserNotFound) {
			return Delivery{}, fmt.Errorf("%w: %s", errors.ErrUnknownRecipient, to)
		}
		return Delivery{}, err
	}

	chatID, created, err := s.chats.ResolveChat(from, to)
	if err != nil {
		return Delivery{}, err
	}
	if created {
		s.log.Info("Chat created on first message", "chat_id", chatID)
	}

	if s.moderator != nil {
		censored, found := s.moderator.Censor(text)
		if len(found) > 0 {
			s.log.Warn("Message content censored", "chat_id", chatID, "sender", from, "matches", len(found))
		}
		text = censored
	}

	info := whatlanggo.Detect(text)
	s.log.Debug("Routing message",
		"chat_id", chatID,
		"sender", from,
		"lang", info.Lang.Iso6391())

	message, err := s.chats.AppendMessage(domain.Message{
		ChatID: chatID,
		Sender: from,
		Text:   text,
	})
	if err != nil {
		return Delivery{}, fmt.Errorf("message append failed: %w", err)
	}

	if s.index != nil {
		// Index failures never fail a send; the chat store stays authoritative.
		if err := s.index.Index(message); err != nil {
			s.log.Error("Message indexing failed", "chat_id", chatID, "error", err)
		}
	}

	return Delivery{
		From:   from,
		To:     to,
		Text:   message.Text,
		ChatID: chatID,
		At:     message.At,
	}, nil
}

// AddFriend pairs two users, creating the target as a placeholder account
// when it does not exist yet. This is the only path allowed to create a
// counterparty implicitly; the placeholder's credential is random and never
// disclosed, so the account stays unusable until its owner registers.
func (s *ChatService) AddFriend(userEmail, friendEmail, friendName string) (string, bool, error) {
	if _, err := s.users.GetUserByEmail(userEmail); err != nil {
		return "", false, err
	}

	if _, err := s.users.GetUserByEmail(friendEmail); err != nil {
		if !goerrors.Is(err, errors.ErrUserNotFound) {
			return "", false, err
		}
		if err := s.createPlaceholder(friendName, friendEmail); err != nil {
			return "", false, err
		}
	}

	chatID, created, err := s.chats.ResolveChat(userEmail, friendEmail)
	if err != nil {
		return "", false, err
	}
	return chatID, !created, nil
}

func (s *ChatService) createPlaceholder(name, email string) error {
	hash, err := hashRandomCredential()
	if err != nil {
		return err
	}
	_, err = s.users.CreateUser(name, email, hash)
	if goerrors.Is(err, errors.ErrUserAlreadyExists) {
		// A concurrent add-friend created it first; that is fine.
		return nil
	}
	return err
}

// GetMessages returns a chat's history in append order. Unknown chat
// identifiers yield an empty sequence, a deliberate permissive policy.
func (s *ChatService) GetMessages(chatID string) ([]domain.Message, error) {
	return s.chats.GetMessages(chatID)
}

// GetFriends resolves each friend link to the peer's current profile.
// Links whose peer record cannot be found are skipped.
func (s *ChatService) GetFriends(email string) ([]Friend, error) {
	links, err := s.users.ListFriendLinks(email)
	if err != nil {
		return nil, err
	}

	friends := make([]Friend, 0, len(links))
	for _, link := range links {
		peer, err := s.users.GetUserByEmail(link.PeerEmail)
		if err != nil {
			s.log.Warn("Skipping dangling friend link", "peer", link.PeerEmail, "chat_id", link.ChatID)
			continue
		}
		friends = append(friends, Friend{Name: peer.Name, Email: peer.Email, ChatID: link.ChatID})
	}
	return friends, nil
}

func (s *ChatService) SearchMessages(ctx context.Context, chatID, query string, limit int) ([]search.Result, error) {
	if s.index == nil {
		return nil, nil
	}
	return s.index.Search(ctx, chatID, query, limit)
}

func hashRandomCredential() (string, error) {
	// The generated secret is discarded on purpose: nobody can log in as a
	// placeholder account until its owner registers properly.
	return auth.HashPassword(uuid.NewString())
}
