package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"babble/web"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
)

// Manual smoke test against a running server: registers two throwaway
// users, opens a websocket session for each, sends a message both ways
// and prints every frame the server fans out.
type Config struct {
	ServerAddr string `envconfig:"SERVER_ADDR" default:"localhost:8080"`
	// TESTER_COLOURS enables colorized output for better log readability
	Colours  bool   `envconfig:"TESTER_COLOURS" default:"true"`
	Password string `envconfig:"TESTER_PASSWORD" default:"Sup3rS3cret!"`
}

type session struct {
	email string
	conn  *websocket.Conn
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("config error: %v", err)
	}

	suffix := uuid.NewString()[:8]
	alice := fmt.Sprintf("alice-%s@babble.test", suffix)
	bob := fmt.Sprintf("bob-%s@babble.test", suffix)

	header(cfg, fmt.Sprintf("  ====== Registering %s and %s ======", alice, bob))
	aliceToken := register(cfg, "Alice", alice)
	bobToken := register(cfg, "Bob", bob)

	header(cfg, "  ====== Opening websocket sessions ======")
	aliceSession := dial(cfg, alice, aliceToken)
	defer aliceSession.conn.Close()
	bobSession := dial(cfg, bob, bobToken)
	defer bobSession.conn.Close()

	go listen(cfg, aliceSession)
	go listen(cfg, bobSession)

	header(cfg, "  ====== Exchanging messages ======")
	send(aliceSession, bob, "Hello Bob, can you read me?")
	send(bobSession, alice, "Loud and clear Alice.")

	// Leave the listeners time to print the fan-out before exiting.
	time.Sleep(2 * time.Second)
	header(cfg, "  ====== Done ======")
}

func header(cfg Config, text string) {
	if cfg.Colours {
		text = color.New(color.BgBlack, color.FgGreen).Render(text)
	}
	fmt.Println(text)
}

func register(cfg Config, name, email string) string {
	body, _ := json.Marshal(map[string]string{
		"name":     name,
		"email":    email,
		"password": cfg.Password,
	})

	url := fmt.Sprintf("http://%s/api/register", cfg.ServerAddr)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("register %s failed: %v", email, err)
	}
	defer resp.Body.Close()

	var reply struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Token   string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		log.Fatalf("register %s: bad response: %v", email, err)
	}
	if !reply.Success {
		log.Fatalf("register %s rejected: %s", email, reply.Message)
	}
	return reply.Token
}

func dial(cfg Config, email, token string) session {
	url := fmt.Sprintf("ws://%s/ws?token=%s", cfg.ServerAddr, token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("websocket dial for %s failed: %v", email, err)
	}
	return session{email: email, conn: conn}
}

func send(s session, to, text string) {
	payload := web.SendMessagePayload{From: s.email, To: to, Message: text}
	data, _ := json.Marshal(payload)
	frame := web.WireMessage{Event: web.EventSendMessage, Data: data}
	if err := s.conn.WriteJSON(frame); err != nil {
		log.Fatalf("send from %s failed: %v", s.email, err)
	}
}

func listen(cfg Config, s session) {
	for {
		var frame web.WireMessage
		if err := s.conn.ReadJSON(&frame); err != nil {
			return
		}

		switch frame.Event {
		case web.EventReceiveMessage:
			var payload web.ReceiveMessagePayload
			if err := json.Unmarshal(frame.Data, &payload); err != nil {
				continue
			}
			line := fmt.Sprintf("[%s] %s -> %s: %s (chat %s)",
				s.email, payload.From, payload.To, payload.Message, payload.ChatID)
			if cfg.Colours {
				line = color.New(color.FgCyan).Render(line)
			}
			fmt.Println(line)
		case web.EventError:
			var payload web.ErrorPayload
			_ = json.Unmarshal(frame.Data, &payload)
			line := fmt.Sprintf("[%s] server error: %s", s.email, payload.Error)
			if cfg.Colours {
				line = color.New(color.FgRed).Render(line)
			}
			fmt.Println(line)
		}
	}
}
