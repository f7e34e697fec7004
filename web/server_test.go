package web

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

	"babble/auth"
	"babble/repositories"
	"babble/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	ts  *httptest.Server
	hub *Hub
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	users := repositories.NewUserRepository(db)
	chats := repositories.NewChatRepository(db, log, nil)
	authService := services.NewAuthService(users, time.Hour)
	chatService := services.NewChatService(users, chats, nil, nil, log)

	hub := NewHub(log, 64)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.Run(ctx) }()

	server := NewServer(log, "", hub, authService, chatService, 16)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return testEnv{ts: ts, hub: hub}
}

func (e testEnv) post(t *testing.T, path string, body any) (int, map[string]json.RawMessage) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(e.ts.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func (e testEnv) register(t *testing.T, name, email string) string {
	t.Helper()
	status, body := e.post(t, "/api/register", map[string]string{
		"name": name, "email": email, "password": "ComplexPass123!",
	})
	require.Equal(t, http.StatusOK, status)

	var token string
	require.NoError(t, json.Unmarshal(body["token"], &token))
	require.NotEmpty(t, token)
	return token
}

func (e testEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) WireMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg WireMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func sendEvent(t *testing.T, conn *websocket.Conn, to, text string) {
	t.Helper()
	payload, err := json.Marshal(SendMessagePayload{To: to, Message: text})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(WireMessage{Event: EventSendMessage, Data: payload}))
}

func Test_Gateway_Rejects_Unauthenticated_Connections(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"

	// No token.
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	// Garbage token.
	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=garbage", nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	// Expired token.
	expired, err := auth.GenerateToken("id", "alice@example.com", -time.Minute)
	req.NoError(err)
	_, resp, err = websocket.DefaultDialer.Dial(url+"?token="+expired, nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	req.Equal(0, env.hub.SessionCount())
}

func Test_Send_Message_Broadcasts_To_All_Sessions(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	aliceToken := env.register(t, "Alice", "alice@example.com")
	bobToken := env.register(t, "Bob", "bob@example.com")
	charlieToken := env.register(t, "Charlie", "charlie@example.com")

	alice := env.dial(t, aliceToken)
	bob := env.dial(t, bobToken)
	charlie := env.dial(t, charlieToken)

	req.Eventually(func() bool { return env.hub.SessionCount() == 3 }, 2*time.Second, 10*time.Millisecond)

	sendEvent(t, alice, "bob@example.com", "hi bob")

	// Fan-out reaches every live session, including the non-participant.
	var chatID string
	for _, conn := range []*websocket.Conn{alice, bob, charlie} {
		msg := readEvent(t, conn)
		req.Equal(EventReceiveMessage, msg.Event)

		var payload ReceiveMessagePayload
		req.NoError(json.Unmarshal(msg.Data, &payload))
		req.Equal("alice@example.com", payload.From)
		req.Equal("bob@example.com", payload.To)
		req.Equal("hi bob", payload.Message)
		req.NotEmpty(payload.ChatID)
		chatID = payload.ChatID
	}

	// The message was persisted before the broadcast went out.
	status, body := env.post(t, "/api/get-chat-messages", map[string]string{"chatId": chatID})
	req.Equal(http.StatusOK, status)
	var messages []messageResponse
	req.NoError(json.Unmarshal(body["messages"], &messages))
	req.Len(messages, 1)
	req.Equal("hi bob", messages[0].Message)
	req.Equal("alice@example.com", messages[0].From)
}

func Test_Send_To_Unregistered_User_Fails(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	aliceToken := env.register(t, "Alice", "a@x.com")
	alice := env.dial(t, aliceToken)
	req.Eventually(func() bool { return env.hub.SessionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	sendEvent(t, alice, "b@x.com", "hi")

	msg := readEvent(t, alice)
	req.Equal(EventError, msg.Event)
	var payload ErrorPayload
	req.NoError(json.Unmarshal(msg.Data, &payload))
	req.Contains(payload.Error, "unknown recipient")

	// Nothing was created for the pair.
	status, body := env.post(t, "/api/get-friends", map[string]string{"userEmail": "a@x.com"})
	req.Equal(http.StatusOK, status)
	req.Equal("[]", strings.TrimSpace(string(body["friends"])))
}

func Test_Add_Friend_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	env.register(t, "Alice", "a@x.com")

	status, body := env.post(t, "/api/add-friend", map[string]string{
		"userEmail": "a@x.com", "friendEmail": "b@x.com", "friendName": "Bob",
	})
	req.Equal(http.StatusOK, status)
	req.Equal(`"Friend added"`, string(body["message"]))
	var chatID string
	req.NoError(json.Unmarshal(body["chatId"], &chatID))
	req.NotEmpty(chatID)

	status, body = env.post(t, "/api/add-friend", map[string]string{
		"userEmail": "a@x.com", "friendEmail": "b@x.com", "friendName": "Bob",
	})
	req.Equal(http.StatusOK, status)
	req.Equal(`"Already friends"`, string(body["message"]))
	var again string
	req.NoError(json.Unmarshal(body["chatId"], &again))
	req.Equal(chatID, again)

	// Both sides see the link.
	status, body = env.post(t, "/api/get-friends", map[string]string{"userEmail": "b@x.com"})
	req.Equal(http.StatusOK, status)
	var friends []struct {
		Name   string `json:"name"`
		Email  string `json:"email"`
		ChatID string `json:"chatId"`
	}
	req.NoError(json.Unmarshal(body["friends"], &friends))
	req.Len(friends, 1)
	req.Equal("a@x.com", friends[0].Email)
	req.Equal(chatID, friends[0].ChatID)
}

func Test_Get_Messages_Unknown_Chat_Is_Empty(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	status, body := env.post(t, "/api/get-chat-messages", map[string]string{"chatId": "no-such-chat"})
	req.Equal(http.StatusOK, status)
	req.Equal("[]", strings.TrimSpace(string(body["messages"])))
}

func Test_Register_Duplicate_Is_Rejected(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	env.register(t, "Alice", "a@x.com")

	status, body := env.post(t, "/api/register", map[string]string{
		"name": "Imposter", "email": "a@x.com", "password": "ComplexPass123!",
	})
	req.Equal(http.StatusBadRequest, status)
	req.Contains(string(body["error"]), "already exists")
}

func Test_Login_Wrong_Password(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	env.register(t, "Alice", "a@x.com")

	status, _ := env.post(t, "/api/login", map[string]string{
		"email": "a@x.com", "password": "WrongPassword1!",
	})
	req.Equal(http.StatusUnauthorized, status)
}
