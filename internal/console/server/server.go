package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/corpsim-engine/internal/console/handler"
	"github.com/xela07ax/corpsim-engine/internal/console/service"
	"github.com/xela07ax/corpsim-engine/internal/infra"
	"github.com/xela07ax/corpsim-engine/internal/infra/auth"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// RunService встраивает BaseValidator и потому сам служит
	// TokenValidator для защищенного периметра
	runService *service.RunService

	authHandler *handler.AuthHandler // /auth/token
	runHandler  *handler.RunHandler  // /v1/runs
}

// NewConsoleServer инициализирует управляющий API со всеми зависимостями
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	runService *service.RunService,
	authH *handler.AuthHandler,
	runH *handler.RunHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:      chi.NewRouter(),
		logger:      logger.Named("console-api"),
		cfg:         cfg,
		runService:  runService,
		authHandler: authH,
		runHandler:  runH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.runService, s.logger))

		// Управление прогонами симуляции
		r.Route("/v1/runs", func(r chi.Router) {
			r.Get("/", s.runHandler.List)
			r.Post("/", s.runHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.runHandler.Get)          // Состояние + снапшот + хэш
				r.Post("/start", s.runHandler.Start)  // created → running, генезис-записи
				r.Post("/advance", s.runHandler.Advance)
				r.Post("/halt", s.runHandler.Halt)     // Redis-сигнал, пауза на границе тика
				r.Post("/resume", s.runHandler.Resume)

				// Журнал и решения (Observability)
				r.Get("/audit", s.runHandler.Audit)
				r.Get("/decisions", s.runHandler.Decisions)

				// Human-in-the-loop (Approvals)
				r.Route("/approvals", func(r chi.Router) {
					r.Get("/", s.runHandler.Approvals) // Очередь эскалаций
					r.Post("/{key}/decide", s.runHandler.Decide) // Approve/Reject + Redis Publish
				})
			})
		})
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
