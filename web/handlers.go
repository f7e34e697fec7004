package web

import (
	"encoding/json"
	goerrors "errors"
	"net/http"
	"time"

	"babble/domain"
	"babble/errors"
	"babble/search"
	"babble/services"

	"github.com/julienschmidt/httprouter"
	"github.com/samber/lo"
)

type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type authResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    userResponse `json:"user"`
}

type messageResponse struct {
	From      string    `json:"from"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	token, user, err := s.authService.Register(body.Name, body.Email, body.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Success: true,
		Message: "Registered successfully",
		Token:   string(token),
		User:    toUserResponse(user),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	token, user, err := s.authService.Login(body.Email, body.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Success: true,
		Message: "Login successful",
		Token:   string(token),
		User:    toUserResponse(user),
	})
}

func (s *Server) handleAddFriend(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		UserEmail   string `json:"userEmail"`
		FriendEmail string `json:"friendEmail"`
		FriendName  string `json:"friendName"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	chatID, already, err := s.chatService.AddFriend(body.UserEmail, body.FriendEmail, body.FriendName)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	message := "Friend added"
	if already {
		message = "Already friends"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": message,
		"chatId":  chatID,
	})
}

func (s *Server) handleGetChatMessages(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		ChatID string `json:"chatId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	messages, err := s.chatService.GetMessages(body.ChatID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]messageResponse{
		"messages": lo.Map(messages, func(item domain.Message, _ int) messageResponse {
			return messageResponse{From: item.Sender, Message: item.Text, Timestamp: item.At}
		}),
	})
}

func (s *Server) handleGetFriends(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		UserEmail string `json:"userEmail"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	friends, err := s.chatService.GetFriends(body.UserEmail)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	type friendResponse struct {
		Name   string `json:"name"`
		Email  string `json:"email"`
		ChatID string `json:"chatId"`
	}
	writeJSON(w, http.StatusOK, map[string][]friendResponse{
		"friends": lo.Map(friends, func(item services.Friend, _ int) friendResponse {
			return friendResponse{Name: item.Name, Email: item.Email, ChatID: item.ChatID}
		}),
	})
}

func (s *Server) handleSearchMessages(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		ChatID string `json:"chatId"`
		Query  string `json:"query"`
		Limit  int    `json:"limit"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	results, err := s.chatService.SearchMessages(r.Context(), body.ChatID, body.Query, body.Limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]messageResponse{
		"messages": lo.Map(results, func(item search.Result, _ int) messageResponse {
			return messageResponse{From: item.Sender, Message: item.Text, Timestamp: item.At}
		}),
	})
}

func toUserResponse(user domain.User) userResponse {
	return userResponse{ID: user.ID, Name: user.Name, Email: user.Email}
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeServiceError translates the error taxonomy into HTTP status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case goerrors.Is(err, errors.ErrUserAlreadyExists),
		goerrors.Is(err, errors.ErrInvalidPassword),
		goerrors.Is(err, errors.ErrInvalidRegistration):
		writeError(w, http.StatusBadRequest, err.Error())
	case goerrors.Is(err, errors.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case goerrors.Is(err, errors.ErrUserNotFound),
		goerrors.Is(err, errors.ErrUnknownRecipient),
		goerrors.Is(err, errors.ErrChatNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.log.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorPayload{Error: message})
}
