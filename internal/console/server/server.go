package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xela07ax/attendance-engine/internal/console/handler"
	"github.com/xela07ax/attendance-engine/internal/domain"
	"github.com/xela07ax/attendance-engine/internal/engine"
	"github.com/xela07ax/attendance-engine/internal/infra/auth"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router  *chi.Mux
	logger  *zap.Logger
	metrics *engine.Metrics

	// Проверка токенов (RS256). Токены выпускает внешний сервис.
	authValidator auth.TokenValidator
	// Источник для /metrics, nil — эндпоинт не публикуется
	gatherer prometheus.Gatherer

	// Обработчики
	attendanceHandler *handler.AttendanceHandler // /api/v1/attendance
	analyticsHandler  *handler.AnalyticsHandler  // /api/v1/analytics, /api/v1/stats
	personHandler     *handler.PersonHandler     // /api/v1/persons
	journalHandler    *handler.JournalHandler    // /api/v1/journal (опционально)
}

// NewConsoleServer инициализирует HTTP API со всеми зависимостями
func NewConsoleServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	metrics *engine.Metrics,
	gatherer prometheus.Gatherer,
	attendanceH *handler.AttendanceHandler,
	analyticsH *handler.AnalyticsHandler,
	personH *handler.PersonHandler,
	journalH *handler.JournalHandler,
) *ConsoleServer {
	if metrics == nil {
		metrics = engine.NewMetrics(nil)
	}
	s := &ConsoleServer{
		router:            chi.NewRouter(),
		logger:            logger.Named("console-api"),
		metrics:           metrics,
		authValidator:     validator,
		gatherer:          gatherer,
		attendanceHandler: attendanceH,
		analyticsHandler:  analyticsH,
		personHandler:     personH,
		journalHandler:    journalH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(engine.TracingMiddleware)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		if s.gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		}
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Вход событий: камера или админ
		r.With(auth.RequireRole(domain.RoleCamera, domain.RoleAdmin)).
			Post("/api/v1/attendance", s.attendanceHandler.Submit)

		// Чтение: дашборд преподавателя и админа
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(domain.RoleAdmin, domain.RoleTeacher))

			r.Get("/api/v1/attendance", s.attendanceHandler.List)
			r.Get("/api/v1/stats", s.analyticsHandler.Stats)
			r.Get("/api/v1/analytics", s.analyticsHandler.Get)
			r.Get("/api/v1/analytics/export.csv", s.analyticsHandler.Export)

			if s.journalHandler != nil {
				r.Get("/api/v1/journal", s.journalHandler.GetLogs)
				r.Get("/api/v1/journal/stats", s.journalHandler.GetStats)
			}
		})

		// Реестр лиц: только админ
		r.Route("/api/v1/persons", func(r chi.Router) {
			r.Use(auth.RequireRole(domain.RoleAdmin))
			r.Get("/", s.personHandler.List)
			r.Post("/", s.personHandler.Create)
			r.Delete("/{id}", s.personHandler.Delete)
		})
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
