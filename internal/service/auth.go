package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/board-game-tracker/auth-service/internal/models"
	"github.com/pribylovaa/board-game-tracker/auth-service/internal/pkg/log"
	"github.com/pribylovaa/board-game-tracker/auth-service/internal/pkg/redact"
	"github.com/pribylovaa/board-game-tracker/auth-service/internal/storage"
)

// RegisterUser регистрирует нового пользователя.
// Токены при регистрации не выпускаются: логин — отдельный шаг.
func (s *Service) RegisterUser(ctx context.Context, username, displayName, password string) (uuid.UUID, error) {
	const op = "service.auth.RegisterUser"

	username, err := validateUsername(username)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	displayName, err = validateDisplayName(displayName)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := validatePassword(password); err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.storage.UserByUsername(ctx, username)
	if err == nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: hashedPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		// Гонка двух регистраций: уникальный индекс в БД ловит дубликат,
		// который не увидела предварительная проверка.
		if errors.Is(err, storage.ErrAlreadyExists) {
			log.From(ctx).Warn("register_race_duplicate",
				slog.String("op", op),
				slog.String("username", redact.Username(username)),
			)
			return uuid.Nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
		}

		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return user.ID, nil
}

// LoginUser выполняет вход по username+пароль.
// Неизвестный username и неверный пароль дают одинаковую ошибку.
func (s *Service) LoginUser(ctx context.Context, username, password string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.LoginUser"

	username, err := validateUsername(username)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if len(password) == 0 {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.storage.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, password) {
		// Пароль в логи не попадает ни в каком виде.
		log.From(ctx).Warn("login_failed",
			slog.String("op", op),
			slog.String("username", redact.Username(username)),
			slog.String("password", redact.Password()),
		)
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	return s.issueTokenPair(ctx, user, "")
}

// RefreshToken обновляет пару токенов по паре access+refresh.
//
// Access-токен может быть просрочен (для того refresh и нужен), но обязан
// иметь корректную подпись и алгоритм. Владелец refresh-токена обязан
// совпадать с subject access-токена: это не даёт погасить чужой refresh-токен
// по своему устаревшему access-токену.
func (s *Service) RefreshToken(ctx context.Context, accessToken, refreshToken string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.RefreshToken"

	claims, err := s.accessClaimsForRefresh(accessToken)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	token, err := s.validateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if token.UserID != claims.UserID {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrTokenMismatch)
	}

	user, err := s.storage.UserByID(ctx, token.UserID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.issueTokenPair(ctx, user, token.RefreshTokenHash)
}

// RevokeToken отзывает refresh-токен (logout текущей сессии).
func (s *Service) RevokeToken(ctx context.Context, refreshToken string) error {
	const op = "service.auth.RevokeToken"

	hash := hashRefreshToken(refreshToken)

	revoked, err := s.storage.RevokeRefreshToken(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.From(ctx).Warn("revoke_unknown_token",
				slog.String("op", op),
				slog.String("token", redact.Token()),
			)
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if !revoked {
		return fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	s.cacheMarkRevoked(ctx, hash)

	return nil
}

// RevokeAllTokens отзывает все активные refresh-токены пользователя
// (logout-everywhere / компрометация учётной записи).
func (s *Service) RevokeAllTokens(ctx context.Context, userID uuid.UUID) error {
	const op = "service.auth.RevokeAllTokens"

	if _, err := s.storage.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ValidateToken проверяет access-токен и возвращает клеймы пользователя.
func (s *Service) ValidateToken(ctx context.Context, accessToken string) (*models.Claims, error) {
	const op = "service.auth.ValidateToken"

	claims, err := s.validateAccessToken(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return claims, nil
}

// hashPassword хэширует пароль с помощью bcrypt.
func hashPassword(password string) (string, error) {
	const op = "service.auth.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// checkPassword сравнивает пароль с хэшем.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// validateUsername проверяет формат username и обрезает пробелы снаружи.
// Допустимы латинские буквы, цифры и . _ -, длина 3..32.
// Регистр сохраняется как есть: уникальность без учёта регистра обеспечивает БД (CITEXT).
func validateUsername(raw string) (string, error) {
	const op = "service.auth.validateUsername"

	username := strings.TrimSpace(raw)
	if len(username) < 3 || len(username) > 32 {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidUsername)
	}

	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case unicode.IsDigit(r):
		case r == '.' || r == '_' || r == '-':
		default:
			return "", fmt.Errorf("%s: %w", op, ErrInvalidUsername)
		}
	}

	return username, nil
}

// validateDisplayName проверяет отображаемое имя: непустое, не длиннее 64 рун.
func validateDisplayName(raw string) (string, error) {
	const op = "service.auth.validateDisplayName"

	name := strings.TrimSpace(raw)
	if name == "" || len([]rune(name)) > 64 {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidDisplayName)
	}

	return name, nil
}

// validatePassword проверяет минимальные требования к паролю: длина >= 8.
func validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if len(pw) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if len([]rune(pw)) < 8 {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}

// issueTokenPair выпускает новую пару access+refresh токенов.
// Если oldRefreshHash != "", старый refresh-токен атомарно отзывается ДО выпуска:
// из конкурентных refresh с одним токеном пару получает ровно один.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User, oldRefreshHash string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.issueTokenPair"

	now := time.Now().UTC()

	accessToken, err := s.generateAccessToken(ctx, user, now)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if oldRefreshHash != "" {
		revoked, err := s.storage.RevokeRefreshToken(ctx, oldRefreshHash)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
		}

		if !revoked {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
		}

		s.cacheMarkRevoked(ctx, oldRefreshHash)
	}

	plain, err := s.generateRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    plain,
		AccessExpiresAt: now.Add(s.cfg.AccessTokenTTL),
	}, user.ID, nil
}
