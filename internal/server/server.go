// Пакет server: HTTP-сервер Aanexa Admin с graceful shutdown.
// Без TLS: HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Dibo68/aanexa-admin/internal/api/handlers"
	"github.com/Dibo68/aanexa-admin/internal/api/middleware"
	"github.com/Dibo68/aanexa-admin/internal/config"
	"github.com/Dibo68/aanexa-admin/internal/domain/rbac"
	"github.com/Dibo68/aanexa-admin/internal/i18n"
	uihandlers "github.com/Dibo68/aanexa-admin/internal/ui/handlers"
	uimiddleware "github.com/Dibo68/aanexa-admin/internal/ui/middleware"
	"github.com/Dibo68/aanexa-admin/internal/ui/static"
)

// Handlers: обработчики и middleware, из которых собираются маршруты.
type Handlers struct {
	API       *handlers.APIHandler
	APIAuth   *middleware.SessionAuth
	Validator *middleware.RequestValidator
	// UI: nil, если Admin UI выключен.
	UI *UIHandlers
}

// UIHandlers: обработчики Admin UI.
type UIHandlers struct {
	PageAuth  *uimiddleware.PageAuth
	Auth      *uihandlers.AuthHandler
	Dashboard *uihandlers.DashboardHandler
	Admins    *uihandlers.AdminsHandler
	Profile   *uihandlers.ProfileHandler
}

// Server: HTTP-сервер Aanexa Admin.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, h Handlers) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(logger, h),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты сервиса.
//
// Health и metrics публичны: их опрашивает Kubernetes напрямую.
// /api/v1: сначала SessionAuth (кроме login/logout), затем проверка OpenAPI
// контракта, чтобы анонимный клиент получал 401, а не детали контракта.
// /admin: страницы UI под PageAuth.
func NewRouter(logger *slog.Logger, h Handlers) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))
	router.Use(i18n.Middleware())

	router.Get("/health/live", h.API.HealthLive)
	router.Get("/health/ready", h.API.HealthReady)
	router.Get("/metrics", h.API.GetMetrics)

	validate := func(r chi.Router) {
		if h.Validator != nil {
			r.Use(h.Validator.Middleware())
		}
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			validate(r)
			r.Post("/auth/login", h.API.Login)
			r.Post("/auth/logout", h.API.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.APIAuth.Require(rbac.RequireAdmin))
			validate(r)
			r.Get("/auth/me", h.API.GetMe)
			r.Get("/admins", h.API.ListAdmins)
			r.Get("/admins/{id}", h.API.GetAdmin)
			r.Patch("/profile", h.API.UpdateProfile)
			r.Post("/profile/password", h.API.ChangePassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.APIAuth.Require(rbac.RequireSuperAdmin))
			validate(r)
			r.Post("/admins", h.API.CreateAdmin)
			r.Patch("/admins/{id}", h.API.UpdateAdmin)
			r.Delete("/admins/{id}", h.API.DeleteAdmin)
		})
	})

	if h.UI != nil {
		mountUI(router, h.UI)
	}

	return router
}

// mountUI регистрирует страницы Admin UI и статические ресурсы.
func mountUI(router chi.Router, ui *UIHandlers) {
	router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(static.FileSystem())))

	router.Get("/admin/login", ui.Auth.HandleLoginPage)
	router.Post("/admin/login", ui.Auth.HandleLogin)
	router.Post("/admin/logout", ui.Auth.HandleLogout)
	router.Post("/admin/language", uihandlers.HandleSetLanguage)
	router.Get("/admin/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, uimiddleware.HomePath, http.StatusMovedPermanently)
	})

	router.Group(func(r chi.Router) {
		r.Use(ui.PageAuth.Require(rbac.RequireAdmin))
		r.Get("/admin", ui.Dashboard.HandleDashboard)
		r.Get("/admin/profile", ui.Profile.HandleProfile)
		r.Post("/admin/profile", ui.Profile.HandleUpdate)
		r.Post("/admin/profile/password", ui.Profile.HandlePassword)
	})

	router.Group(func(r chi.Router) {
		r.Use(ui.PageAuth.Require(rbac.RequireSuperAdmin))
		r.Get("/admin/admins", ui.Admins.HandleList)
		r.Post("/admin/admins", ui.Admins.HandleCreate)
		r.Post("/admin/admins/{id}", ui.Admins.HandleUpdate)
		r.Post("/admin/admins/{id}/delete", ui.Admins.HandleDelete)
	})
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. После этого выполняется graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
