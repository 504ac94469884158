// errors стандартизирует ответы об ошибках HTTP-слоя auth-сервиса.
// На вход он принимает доменную ошибку (сентинелы пакета service),
// а на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей.
//
// Безопасность:
//   - все отказы по учётным данным и токенам маппятся в единый ответ 401
//     "unauthenticated": снаружи неразличимы «пользователь не найден» и
//     «неверный пароль», «refresh не существует» и «refresh просрочен»;
//   - для 500 детали внутренних ошибок наружу не отдаются.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pribylovaa/board-game-tracker/auth-service/internal/service"
)

// StatusClientClosedRequest — нестандартный код, часто используемый
// для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// ErrBadRequest — локальная ошибка транспорта (битый JSON, лишние поля).
var ErrBadRequest = errors.New("invalid argument")

// APIError — единый формат ошибки для клиента.
// Code — короткий стабильный код для машиночитаемой обработки.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует доменную ошибку в HTTP-статус и унифицированный ответ.
//
// Поведение:
//   - err == nil — это программная ошибка вызова: возвращаем 500/internal,
//     чтобы не послать "200 OK" с телом ошибки и не маскировать баг;
//   - ошибки валидации входа -> 400;
//   - занятый username -> 409;
//   - любой отказ по учётным данным/токенам -> 401 с единым телом;
//   - таймаут нижележащих вызовов -> 503, отмена клиентом -> 499;
//   - прочее -> 500/internal (без утечки деталей).
func ToHTTP(err error) (int, ErrorResponse) {
	switch {
	case err == nil:
		return respond(http.StatusInternalServerError, "internal", "internal error")

	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidUsername),
		errors.Is(err, service.ErrInvalidDisplayName),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrEmptyPassword):
		return respond(http.StatusBadRequest, "invalid_argument", "invalid argument")

	case errors.Is(err, service.ErrUsernameTaken):
		return respond(http.StatusConflict, "already_exists", "already exists")

	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrTokenRevoked),
		errors.Is(err, service.ErrTokenMismatch):
		return respond(http.StatusUnauthorized, "unauthenticated", "unauthenticated")

	case errors.Is(err, context.DeadlineExceeded):
		return respond(http.StatusServiceUnavailable, "unavailable", "service unavailable")

	case errors.Is(err, context.Canceled):
		return respond(StatusClientClosedRequest, "canceled", "canceled")

	default:
		return respond(http.StatusInternalServerError, "internal", "internal error")
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	// Прокидываем request_id для клиента, чтобы он мог репортить баги с привязкой.
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func respond(status int, code, msg string) (int, ErrorResponse) {
	return status, ErrorResponse{Error: APIError{Code: code, Message: msg}}
}
