package models

import (
	"time"

	"github.com/google/uuid"
)

// Claims — типизированный набор identity-утверждений из access-токена.
// Фиксированная структура вместо словаря «имя клейма -> строка».
type Claims struct {
	UserID      uuid.UUID
	Username    string
	DisplayName string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}
