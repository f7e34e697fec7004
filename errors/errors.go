package errors

import "fmt"

var (
	ErrUserAlreadyExists   = fmt.Errorf("user already exists")
	ErrUserNotFound        = fmt.Errorf("user not found")
	ErrChatNotFound        = fmt.Errorf("chat not found")
	ErrUnknownRecipient    = fmt.Errorf("unknown recipient")
	ErrInvalidCredentials  = fmt.Errorf("invalid credentials")
	ErrInvalidPassword     = fmt.Errorf("invalid password")
	ErrInvalidRegistration = fmt.Errorf("invalid registration request")
	ErrTokenGeneration     = fmt.Errorf("token generation failed")
	ErrWorkerPanic         = fmt.Errorf("worker panic")
)
