package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken — серверное представление refresh-токена.
//
// Клиенту выдаётся только plain-значение; в БД хранится исключительно
// SHA-256 хэш (base64url). Токен одноразовый: успешный refresh помечает
// его revoked и выпускает новый.
type RefreshToken struct {
	RefreshTokenHash string
	UserID           uuid.UUID
	CreatedAt        time.Time
	ExpiresAt        time.Time
	Revoked          bool
}
