package test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"babble/moderation"
	"babble/repositories"
	"babble/search"
	"babble/services"
	"babble/web"
	"babble/workers"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// Test_Scenario exercises the whole stack the way the server wires it:
// register two users over REST, open authenticated websocket sessions,
// exchange a message containing a censored word, then verify the fan-out,
// the persisted history, the friend links and the search index.
func Test_Scenario(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)

	// Reduced to 16 Mo for testing (avoid 20 Go of storage)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	blugeWriter, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	req.NoError(err)
	t.Cleanup(func() { _ = blugeWriter.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	users := repositories.NewUserRepository(db)
	chats := repositories.NewChatRepository(db, log, nil)
	index := search.NewMessageIndex(blugeWriter, log)
	moderator, err := moderation.NewModerator([]string{"stupid"}, '*', log)
	req.NoError(err)

	authService := services.NewAuthService(users, time.Hour)
	chatService := services.NewChatService(users, chats, moderator, index, log)

	hub := web.NewHub(log, 64)
	supervisor := workers.NewSupervisor(log, 200*time.Millisecond)
	supervisor.Add(hub, workers.NewHeartbeatWorker(log, hub, time.Minute))

	runCtx, cancel := context.WithCancel(ctx)
	go supervisor.Run(runCtx)
	t.Cleanup(func() {
		supervisor.Stop()
		cancel()
	})

	server := web.NewServer(log, "", hub, authService, chatService, 16)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	// Given two registered users
	aliceToken := register(t, ts, "Alice", "alice@example.com")
	bobToken := register(t, ts, "Bob", "bob@example.com")

	alice := dial(t, ts, aliceToken)
	bob := dial(t, ts, bobToken)
	req.Eventually(func() bool { return hub.SessionCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	// When Alice sends Bob a message containing a censored word
	payload, err := json.Marshal(web.SendMessagePayload{
		To: "bob@example.com", Message: "you are stupid sometimes",
	})
	req.NoError(err)
	req.NoError(alice.WriteJSON(web.WireMessage{Event: web.EventSendMessage, Data: payload}))

	// Then both sessions receive the censored version
	var chatID string
	for _, conn := range []*websocket.Conn{alice, bob} {
		req.NoError(conn.SetReadDeadline(time.Now().Add(3 * time.Second)))
		var frame web.WireMessage
		req.NoError(conn.ReadJSON(&frame))
		req.Equal(web.EventReceiveMessage, frame.Event)

		var received web.ReceiveMessagePayload
		req.NoError(json.Unmarshal(frame.Data, &received))
		req.Equal("alice@example.com", received.From)
		req.Equal("bob@example.com", received.To)
		req.Equal("you are ****** sometimes", received.Message)
		req.NotEmpty(received.ChatID)
		chatID = received.ChatID
	}

	// And the message was persisted before the broadcast
	status, body := post(t, ts, "/api/get-chat-messages", map[string]string{"chatId": chatID})
	req.Equal(http.StatusOK, status)
	var history []struct {
		From    string `json:"from"`
		Message string `json:"message"`
	}
	req.NoError(json.Unmarshal(body["messages"], &history))
	req.Len(history, 1)
	req.Equal("you are ****** sometimes", history[0].Message)

	// And both users are linked to the same chat
	for _, email := range []string{"alice@example.com", "bob@example.com"} {
		status, body = post(t, ts, "/api/get-friends", map[string]string{"userEmail": email})
		req.Equal(http.StatusOK, status)
		var friends []struct {
			ChatID string `json:"chatId"`
		}
		req.NoError(json.Unmarshal(body["friends"], &friends))
		req.Len(friends, 1)
		req.Equal(chatID, friends[0].ChatID)
	}

	// And the message is findable through the search surface
	req.Eventually(func() bool {
		status, body = post(t, ts, "/api/search-messages", map[string]any{
			"chatId": chatID, "query": "sometimes",
		})
		if status != http.StatusOK {
			return false
		}
		var results []struct {
			From string `json:"from"`
		}
		if err := json.Unmarshal(body["messages"], &results); err != nil {
			return false
		}
		return len(results) == 1 && results[0].From == "alice@example.com"
	}, 3*time.Second, 50*time.Millisecond)
}

func register(t *testing.T, ts *httptest.Server, name, email string) string {
	t.Helper()
	req := require.New(t)

	status, body := post(t, ts, "/api/register", map[string]string{
		"name": name, "email": email, "password": "ComplexPass123!",
	})
	req.Equal(http.StatusOK, status)

	var token string
	req.NoError(json.Unmarshal(body["token"], &token))
	req.NotEmpty(token)
	return token
}

func post(t *testing.T, ts *httptest.Server, path string, body any) (int, map[string]json.RawMessage) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func dial(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
