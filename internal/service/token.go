package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pribylovaa/board-game-tracker/auth-service/internal/cache"
	"github.com/pribylovaa/board-game-tracker/auth-service/internal/models"
	"github.com/pribylovaa/board-game-tracker/auth-service/internal/pkg/log"
	"github.com/pribylovaa/board-game-tracker/auth-service/internal/storage"
)

// generateAccessToken генерирует access-токен (HS256).
func (s *Service) generateAccessToken(ctx context.Context, user *models.User, now time.Time) (string, error) {
	const op = "service.token.generateAccessToken"

	lg := log.From(ctx)

	claims := newAccessClaims(user, now, s.cfg)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		lg.Error("access_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// keyFunc отдаёт ключ подписи и дублирует проверку алгоритма:
// токен с любым методом, кроме HS256, отклоняется до проверки подписи.
func (s *Service) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method != jwt.SigningMethodHS256 {
		return nil, fmt.Errorf("unexpected signing method: %w", ErrInvalidToken)
	}

	return []byte(s.cfg.JWTSecret), nil
}

// parserOpts — общие опции валидации access-токена.
func (s *Service) parserOpts() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5 * time.Second),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience...),
	}
}

// validateAccessToken валидирует access-токен полностью (подпись, алгоритм,
// срок действия, issuer, audience) и возвращает типизированные клеймы.
func (s *Service) validateAccessToken(tokenStr string) (*models.Claims, error) {
	const op = "service.token.validateAccessToken"

	parsed := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, parsed, s.keyFunc, s.parserOpts()...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	out, err := claims.toClaims()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// accessClaimsForRefresh разбирает access-токен для сценария refresh:
// истечение срока допустимо (refresh и существует для продления истёкшей
// сессии), но подпись, алгоритм, issuer и audience по-прежнему обязаны
// быть корректными.
func (s *Service) accessClaimsForRefresh(tokenStr string) (*models.Claims, error) {
	const op = "service.token.accessClaimsForRefresh"

	parsed := &accessClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, parsed, s.keyFunc, s.parserOpts()...)

	if err != nil {
		// Подпись в jwt/v5 проверяется до клеймов, поэтому ErrTokenExpired
		// гарантирует валидную подпись и алгоритм. Ошибки issuer/audience
		// приходят склеенными с ErrTokenExpired — проверяем их отдельно.
		expiredOnly := errors.Is(err, jwt.ErrTokenExpired) &&
			!errors.Is(err, jwt.ErrTokenInvalidIssuer) &&
			!errors.Is(err, jwt.ErrTokenInvalidAudience)

		if !expiredOnly {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
	}

	out, err := parsed.toClaims()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// hashRefreshToken — sha256(plain) в base64url; в таком виде токен хранится в БД.
func hashRefreshToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// generateRefreshToken создает новый refresh-токен (256 бит энтропии) и
// сохраняет его хэш в хранилище.
func (s *Service) generateRefreshToken(ctx context.Context, userID uuid.UUID) (string, error) {
	const (
		op          = "service.token.generateRefreshToken"
		maxAttempts = 5
	)

	lg := log.From(ctx)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			lg.Error("refresh_rand_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", fmt.Errorf("%s: %w", op, err)
		}
		plain := base64.RawURLEncoding.EncodeToString(b)
		hash := hashRefreshToken(plain)

		now := time.Now().UTC()
		token := &models.RefreshToken{
			RefreshTokenHash: hash,
			UserID:           userID,
			CreatedAt:        now,
			ExpiresAt:        now.Add(s.cfg.RefreshTokenTTL),
			Revoked:          false,
		}

		if err := s.storage.SaveRefreshToken(ctx, token); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				// Редкая коллизия — пробуем сгенерировать заново.
				continue
			}

			lg.Error("save_refresh_token_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", fmt.Errorf("%s: %w", op, err)
		}

		s.cacheRefresh(ctx, token)

		return plain, nil
	}

	lg.Error("refresh_collision_exceeded",
		slog.String("op", op),
	)

	return "", fmt.Errorf("%s: %w", op, ErrRefreshTokenCollision)
}

// validateRefreshToken валидирует refresh-токен.
// Кэш используется только для быстрого отказа: приём токена всегда
// подтверждается хранилищем.
func (s *Service) validateRefreshToken(ctx context.Context, plain string) (*models.RefreshToken, error) {
	const op = "service.token.validateRefreshToken"

	lg := log.From(ctx)
	hash := hashRefreshToken(plain)

	if s.rcache != nil {
		entry, found, err := s.rcache.Get(ctx, hash)
		if err != nil {
			// Кэш — best-effort: при сбое идём в хранилище.
			lg.Warn("refresh_cache_get_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		} else if found {
			if entry.Revoked {
				lg.Warn("refresh_revoked_cached",
					slog.String("op", op),
					slog.String("user_id", entry.UserID.String()),
				)
				return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
			}

			if time.Now().UTC().After(entry.ExpiresAt) {
				return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
			}
		}
	}

	token, err := s.storage.RefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("refresh_lookup_not_found",
				slog.String("op", op),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		lg.Error("refresh_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if token.Revoked {
		lg.Warn("refresh_revoked",
			slog.String("op", op),
			slog.String("user_id", token.UserID.String()),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	if time.Now().UTC().After(token.ExpiresAt) {
		lg.Warn("refresh_expired",
			slog.String("op", op),
			slog.String("user_id", token.UserID.String()),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	return token, nil
}

// cacheRefresh кладёт запись о свежем refresh-токене в кэш (best-effort).
func (s *Service) cacheRefresh(ctx context.Context, token *models.RefreshToken) {
	if s.rcache == nil {
		return
	}

	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return
	}

	entry := &cache.RefreshEntry{
		UserID:    token.UserID,
		Revoked:   token.Revoked,
		ExpiresAt: token.ExpiresAt,
	}

	if err := s.rcache.Set(ctx, token.RefreshTokenHash, entry, ttl); err != nil {
		log.From(ctx).Warn("refresh_cache_set_failed",
			slog.String("err", err.Error()),
		)
	}
}

// cacheMarkRevoked помечает токен отозванным в кэше (best-effort).
func (s *Service) cacheMarkRevoked(ctx context.Context, hash string) {
	if s.rcache == nil {
		return
	}

	if err := s.rcache.MarkRevoked(ctx, hash); err != nil {
		log.From(ctx).Warn("refresh_cache_revoke_failed",
			slog.String("err", err.Error()),
		)
	}
}
