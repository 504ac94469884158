// transport/http содержит HTTP-эндпоинты auth-сервиса.
// Здесь выполняется только маппинг данных и ошибок доменного слоя (service) в HTTP.
// Вся валидация и бизнес-логика находятся в пакете service.
//
// Принципы:
//   - Контекст запроса прокидывается в сервис без потерь;
//   - Ошибки сервиса явно транслируются в HTTP-статусы (см. пакет internal/errors):
//   - ErrInvalidUsername/ErrInvalidDisplayName/ErrWeakPassword/ErrEmptyPassword -> 400;
//   - ErrUsernameTaken -> 409;
//   - ErrInvalidCredentials/ErrInvalidToken/ErrTokenExpired/ErrTokenRevoked/ErrTokenMismatch -> 401;
//   - context.DeadlineExceeded -> 503;
//   - иные ошибки -> 500 c единым безопасным сообщением;
//   - ValidateToken при невалидном/просроченном токене НЕ возвращает ошибку, а
//     отдаёт {valid:false} (контракт эндпоинта).
//
// Безопасность:
//   - Для 401/500 наружу не утекают детали внутренних ошибок; подробности должны
//     попадать в логи через мидлвары на уровне сервера.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/pribylovaa/board-game-tracker/auth-service/internal/errors"
	"github.com/pribylovaa/board-game-tracker/auth-service/internal/service"
)

// Server — HTTP-сервер авторизации поверх сервисного слоя.
type Server struct {
	service *service.Service
}

// NewServer создаёт HTTP-сервер авторизации.
func NewServer(service *service.Service) *Server {
	return &Server{service: service}
}

// Routes регистрирует auth-эндпоинты на переданном роутере.
func (s *Server) Routes(r chi.Router) {
	r.Post("/auth/register", s.RegisterUser)
	r.Post("/auth/login", s.LoginUser)
	r.Post("/auth/refresh", s.RefreshToken)
	r.Post("/auth/revoke", s.RevokeToken)
	r.Post("/auth/revoke_all", s.RevokeAllTokens)
	r.Post("/auth/validate", s.ValidateToken)
}

// Входные/выходные модели REST-эндпоинтов.

type registerRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type revokeRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type revokeAllRequest struct {
	AccessToken string `json:"access_token"`
}

type validateRequest struct {
	AccessToken string `json:"access_token"`
}

type authResponse struct {
	UserID          string `json:"user_id"`
	AccessToken     string `json:"access_token"`
	RefreshToken    string `json:"refresh_token"`
	AccessExpiresAt int64  `json:"access_expires_at"` // Unix UTC
}

type okResponse struct {
	Ok bool `json:"ok"`
}

type validateResponse struct {
	Valid       bool   `json:"valid"`
	UserID      string `json:"user_id,omitempty"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// RegisterUser регистрирует пользователя. Токены не выдаются: логин — отдельный шаг.
// Успех — 204 No Content.
func (s *Server) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	_, err := s.service.RegisterUser(r.Context(), in.Username, in.DisplayName, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LoginUser аутентифицирует пользователя и возвращает новую пару токенов.
func (s *Server) LoginUser(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	tokenPair, uid, err := s.service.LoginUser(r.Context(), in.Username, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		UserID:          uid.String(),
		AccessToken:     tokenPair.AccessToken,
		RefreshToken:    tokenPair.RefreshToken,
		AccessExpiresAt: tokenPair.AccessExpiresAt.Unix(),
	})
}

// RefreshToken выпускает новую пару токенов по паре access+refresh.
// Просроченный access-токен допустим; подпись и владелец проверяются.
func (s *Server) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	tokenPair, uid, err := s.service.RefreshToken(r.Context(), in.AccessToken, in.RefreshToken)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		UserID:          uid.String(),
		AccessToken:     tokenPair.AccessToken,
		RefreshToken:    tokenPair.RefreshToken,
		AccessExpiresAt: tokenPair.AccessExpiresAt.Unix(),
	})
}

// RevokeToken отзывает refresh-токен (logout текущей сессии).
func (s *Server) RevokeToken(w http.ResponseWriter, r *http.Request) {
	var in revokeRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	if err := s.service.RevokeToken(r.Context(), in.RefreshToken); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{Ok: true})
}

// RevokeAllTokens отзывает все активные refresh-токены владельца access-токена
// (logout-everywhere). Требует валидный (не просроченный) access-токен.
func (s *Server) RevokeAllTokens(w http.ResponseWriter, r *http.Request) {
	var in revokeAllRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	claims, err := s.service.ValidateToken(r.Context(), in.AccessToken)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := s.service.RevokeAllTokens(r.Context(), claims.UserID); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{Ok: true})
}

// ValidateToken валидирует access-токен (JWT).
// Контракт: при невалидном/просроченном токене ошибку не возвращает —
// отдаёт {valid:false}. При прочих ошибках — 500.
func (s *Server) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var in validateRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	claims, err := s.service.ValidateToken(r.Context(), in.AccessToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) || errors.Is(err, service.ErrTokenExpired) {
			writeJSON(w, http.StatusOK, validateResponse{Valid: false})
			return
		}

		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Valid:       true,
		UserID:      claims.UserID.String(),
		Username:    claims.Username,
		DisplayName: claims.DisplayName,
	})
}

// writeJSON — единый ответ JSON с нужным Content-Type.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}
