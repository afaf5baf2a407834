package usecase

import (
	"errors"
	"strings"

	"example.com/teamboard/internal/auth"
	"example.com/teamboard/internal/domain"
	"example.com/teamboard/internal/repository"
	"example.com/teamboard/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidUser        = errors.New("name, email and password are required")
)

type UserService struct {
	repo   repository.UserRepository
	tokens *auth.TokenManager
}

func NewUserService(repo repository.UserRepository, tokens *auth.TokenManager) *UserService {
	return &UserService{repo: repo, tokens: tokens}
}

// Register creates the user and issues a bearer token for it.
func (s *UserService) Register(name, email, password string) (domain.User, string, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return domain.User{}, "", ErrInvalidUser
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", err
	}
	user, err := s.repo.CreateUser(domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return domain.User{}, "", ErrEmailTaken
		}
		return domain.User{}, "", err
	}
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, token, nil
}

func (s *UserService) Login(email, password string) (domain.User, string, error) {
	user, err := s.repo.GetUserByEmail(strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.User{}, "", ErrInvalidCredentials
		}
		return domain.User{}, "", err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, token, nil
}

func (s *UserService) Get(id string) (domain.User, error) {
	return s.repo.GetUser(id)
}

func (s *UserService) List() ([]domain.User, error) {
	return s.repo.ListUsers()
}
