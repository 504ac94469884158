package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/board-game-tracker/auth-service/internal/models"
)

var (
	// ErrNotFound — запись не найдена (пользователь/токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (username/refresh-token).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создает нового пользователя в БД.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByUsername находит пользователя по username (без учёта регистра).
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RefreshTokenStorage выполняет операции над refresh-токенами.
type RefreshTokenStorage interface {
	// SaveRefreshToken сохраняет новый refresh-token в БД.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// RefreshTokenByHash находит refresh-токен по его хэшу.
	RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	// RevokeRefreshToken пытается отозвать refresh-токен. Возвращает:
	//   (true, nil)  — токен был активен и отозван этим вызовом;
	//   (false, nil) — токен существует, но уже был отозван;
	//   (false, ErrNotFound) — токен не найден.
	// Операция атомарна: из конкурентных вызовов с одним хэшом
	// ровно один получает true.
	RevokeRefreshToken(ctx context.Context, hash string) (bool, error)
	// RevokeAllForUser отзывает все активные refresh-токены пользователя.
	// Возвращает число отозванных токенов.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	// DeleteExpiredTokens удаляет все просроченные токены.
	DeleteExpiredTokens(ctx context.Context, now time.Time) error
}

// Storage задает контракт работы с БД.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	Close()
}
