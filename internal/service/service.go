// service содержит бизнес-логику auth-сервиса:
// регистрацию/аутентификацию пользователей, выпуск/проверку токенов
// и работу с хранилищем через интерфейсы из пакета storage.
//
// Основные аспекты:
//   - Пакет не хранит состояние запроса внутри Service; экземпляр Service
//     безопасен для конкурентного использования из разных горутин при условии,
//     что переданное хранилище (storage.Storage) потокобезопасно.
//   - Ошибки возвращаются и далее маппятся
//     транспортом на HTTP-статусы (см. комментарии к переменным ошибок ниже).
package service

import (
	"errors"
	"fmt"

	"github.com/pribylovaa/board-game-tracker/auth-service/internal/cache"
	"github.com/pribylovaa/board-game-tracker/auth-service/internal/config"
	"github.com/pribylovaa/board-game-tracker/auth-service/internal/storage"
)

var (
	// ErrInvalidCredentials — пара логин/пароль неверна или пользователь не найден.
	// Оба случая намеренно неразличимы (защита от перебора username).
	// Транспорт: 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken — токен (access/refresh) некорректен по формату/подписи/алгоритму
	// или отсутствует в хранилище. Транспорт: 401.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired — срок действия токена истёк. Транспорт: 401.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked — токен отозван (logout/rotation/compromise) и недействителен
	// независимо от срока. Транспорт: 401.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrTokenMismatch — refresh-токен принадлежит не тому пользователю,
	// что указан в subject access-токена. Транспорт: 401.
	ErrTokenMismatch = errors.New("token mismatch")

	// ErrUsernameTaken — username уже занят другим пользователем.
	// Транспорт: 409.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrRefreshTokenCollision — исчерпаны попытки сгенерировать уникальный refresh-токен
	// (редкий случай коллизий при сохранении хэша в БД после нескольких ретраев).
	// Транспорт: 500.
	ErrRefreshTokenCollision = errors.New("refresh token collision")

	// ErrInvalidUsername — username пустой, слишком длинный или содержит
	// недопустимые символы. Транспорт: 400.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrInvalidDisplayName — отображаемое имя пустое или слишком длинное.
	// Транспорт: 400.
	ErrInvalidDisplayName = errors.New("invalid display name")

	// ErrWeakPassword — пароль короче минимальной длины. Транспорт: 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword — пароль пустой. Транспорт: 400.
	ErrEmptyPassword = errors.New("password is empty")
)

// Service описывает бизнес-логику auth-сервиса.
type Service struct {
	storage storage.Storage
	cfg     config.AuthConfig
	rcache  cache.RefreshCache // может быть nil, если кэш не сконфигурирован
}

// New создаёт новый экземпляр Service.
// Валидирует AuthConfig: слабый секрет подписи или неположительные TTL —
// фатальная ошибка конфигурации (config.ErrMisconfigured), процесс не должен стартовать.
func New(storage storage.Storage, cfg config.AuthConfig) (*Service, error) {
	const op = "service.New"

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Service{
		storage: storage,
		cfg:     cfg,
	}, nil
}

// SetRefreshCache устанавливает кэш refresh-токенов (опционально).
func (s *Service) SetRefreshCache(c cache.RefreshCache) {
	s.rcache = c
}
