package models

import (
	"time"

	"github.com/google/uuid"
)

// User — учётная запись пользователя.
//
// Username уникален без учёта регистра (CITEXT в БД); DisplayName — свободное
// отображаемое имя. Пароль хранится только в виде bcrypt-хэша.
type User struct {
	ID           uuid.UUID
	Username     string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
