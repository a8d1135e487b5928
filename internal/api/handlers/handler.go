// handler.go: основной обработчик Admin API.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/Dibo68/aanexa-admin/internal/api/errors"
	"github.com/Dibo68/aanexa-admin/internal/auth"
	"github.com/Dibo68/aanexa-admin/internal/domain/model"
	"github.com/Dibo68/aanexa-admin/internal/i18n"
	"github.com/Dibo68/aanexa-admin/internal/repository"
	"github.com/Dibo68/aanexa-admin/internal/service"
)

// AccountService: операции над учётными записями (реализуется *service.AdminAccountService).
type AccountService interface {
	Create(ctx context.Context, caller model.Principal, in service.NewAccount) (*model.AdminAccount, error)
	Update(ctx context.Context, caller model.Principal, id string, upd model.AccountUpdate) (*model.AdminAccount, error)
	Delete(ctx context.Context, caller model.Principal, id string) (*model.AdminAccount, error)
	Get(ctx context.Context, caller model.Principal, id string) (*model.AdminAccount, error)
	List(ctx context.Context, caller model.Principal, filter repository.AccountFilter, limit, offset int) (*service.AccountPage, error)
}

// SessionService: вход и выход (реализуется *service.SessionService).
type SessionService interface {
	SignIn(ctx context.Context, email, password string) (*auth.Session, model.Principal, error)
	SignOut(ctx context.Context, sess *auth.Session)
}

// ProfileService: самообслуживание (реализуется *service.ProfileService).
type ProfileService interface {
	UpdateOwnProfile(ctx context.Context, caller model.Principal, upd model.AccountUpdate) (*model.AdminAccount, error)
	ChangePassword(ctx context.Context, caller model.Principal, current, next string) error
}

// APIHandler: основной обработчик Admin API.
type APIHandler struct {
	health   *HealthHandler
	accounts AccountService
	sessions SessionService
	profile  ProfileService
	cookies  *auth.SessionManager
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	accounts AccountService,
	sessions SessionService,
	profile ProfileService,
	cookies *auth.SessionManager,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:   health,
		accounts: accounts,
		sessions: sessions,
		profile:  profile,
		cookies:  cookies,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive: liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady: readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics: Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// maxBodyBytes: предел размера JSON-тела запроса.
const maxBodyBytes = 64 << 10

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON разбирает тело запроса в dst. Неизвестные поля: ошибка.
// При ошибке ответ 400 уже записан.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		apierrors.ValidationError(w, r, i18n.T(r.Context(), "validation.malformed_body"))
		return false
	}
	return true
}

// principal извлекает Principal, помещённый SessionAuth.
// Если его нет, маршрут не защищён middleware: ответ 401.
func principal(w http.ResponseWriter, r *http.Request) (model.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		apierrors.Unauthenticated(w, r)
	}
	return p, ok
}

// accountID извлекает и проверяет {id} из пути.
func accountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.ValidationError(w, r, i18n.T(r.Context(), "validation.id_invalid"))
		return "", false
	}
	return id.String(), true
}

// queryInt разбирает необязательный целочисленный query-параметр.
func queryInt(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, errors.New(name)
	}
	return &v, nil
}

// paginationDefaults нормализует параметры пагинации.
// Возвращает корректные limit и offset.
func paginationDefaults(limit *int, offset *int) (int, int) {
	l := 100
	o := 0

	if limit != nil {
		l = *limit
		if l < 1 {
			l = 1
		}
		if l > 1000 {
			l = 1000
		}
	}

	if offset != nil {
		o = *offset
		if o < 0 {
			o = 0
		}
	}

	return l, o
}
