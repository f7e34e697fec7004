package services

import (
	"fmt"
	"time"

	"babble/auth"
	"babble/domain"
	"babble/errors"
	"babble/repositories"
)

type IAuthService interface {
	Register(name, email, password string) (Token, domain.User, error)
	Login(email, password string) (Token, domain.User, error)
}

type AuthService struct {
	userRepository repositories.IUserRepository
	tokenDuration  time.Duration
}

type Token string

func NewAuthService(repo repositories.IUserRepository, tokenDuration time.Duration) IAuthService {
	return &AuthService{userRepository: repo, tokenDuration: tokenDuration}
}

func (s *AuthService) Register(name, email, password string) (Token, domain.User, error) {
	valReq := auth.RegisterRequest{
		Name:     name,
		Email:    email,
		Password: password,
	}

	// Validate business rules before any expensive cryptographic operation.
	// The validator already tags failures with the right sentinel.
	if err := auth.ValidateRegister(valReq); err != nil {
		return "", domain.User{}, err
	}

	// Hashing happens in the service layer to keep the repository unaware
	// of plain passwords.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", domain.User{}, fmt.Errorf("hashing failed: %w", err)
	}

	userID, err := s.userRepository.CreateUser(name, email, hashedPassword)
	if err != nil {
		return "", domain.User{}, err // Propagates ErrUserAlreadyExists if the email is taken
	}

	token, err := auth.GenerateToken(userID, email, s.tokenDuration)
	if err != nil {
		return "", domain.User{}, errors.ErrTokenGeneration
	}

	return Token(token), profile(domain.User{ID: userID, Name: name, Email: email}), nil
}

func (s *AuthService) Login(email, password string) (Token, domain.User, error) {
	user, err := s.userRepository.GetUserByEmail(email)
	if err != nil {
		// Generic error to prevent user enumeration attacks.
		return "", domain.User{}, errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", domain.User{}, errors.ErrInvalidCredentials
	}

	token, err := auth.GenerateToken(user.ID, user.Email, s.tokenDuration)
	if err != nil {
		return "", domain.User{}, errors.ErrTokenGeneration
	}

	return Token(token), profile(user), nil
}

// profile strips everything a caller must never see from a user record.
func profile(user domain.User) domain.User {
	user.PasswordHash = ""
	user.Friends = nil
	return user
}
