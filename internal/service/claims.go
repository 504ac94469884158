package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pribylovaa/board-game-tracker/auth-service/internal/config"
	"github.com/pribylovaa/board-game-tracker/auth-service/internal/models"
)

// accessClaims — клеймы access-токена. Фиксированная типизированная структура:
// sub/uid — id пользователя, unique_name — username, display_name — отображаемое имя.
type accessClaims struct {
	UserID      string `json:"uid"`
	Username    string `json:"unique_name"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// newAccessClaims собирает набор identity-клеймов из учётной записи.
// Чистая функция: пользователь считается уже провалидированным, ошибок нет.
func newAccessClaims(user *models.User, now time.Time, cfg config.AuthConfig) accessClaims {
	return accessClaims{
		UserID:      user.ID.String(),
		Username:    user.Username,
		DisplayName: user.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    cfg.Issuer,
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings(cfg.Audience),
		},
	}
}

// toClaims конвертирует клеймы JWT в доменную модель.
// Возвращает ErrInvalidToken, если subject не парсится как UUID.
func (c *accessClaims) toClaims() (*models.Claims, error) {
	uid, err := uuid.Parse(c.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims := &models.Claims{
		UserID:      uid,
		Username:    c.Username,
		DisplayName: c.DisplayName,
	}

	if c.IssuedAt != nil {
		claims.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		claims.ExpiresAt = c.ExpiresAt.Time
	}

	return claims, nil
}
