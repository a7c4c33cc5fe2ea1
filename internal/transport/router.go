package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sourcehub/sourcehub/internal/config"
	"github.com/sourcehub/sourcehub/internal/transport/handler"
	"github.com/sourcehub/sourcehub/internal/transport/middleware"
	"github.com/sourcehub/sourcehub/internal/usecase"
	"go.uber.org/zap"
)

type Services struct {
	Auth     *usecase.AuthService
	Access   *usecase.AccessService
	Projects *usecase.ProjectService
	Store    *usecase.RepoService
	Git      *usecase.GitService
	Prs      *usecase.PrService
	Reviews  *usecase.ReviewService
	Merges   *usecase.MergeService
	Issues   *usecase.IssueService
}

// NewRouter assembles the HTTP surface. The git endpoints sit outside
// the JSON chain: no request timeout (pack transfers can be slow) and
// their own Basic-capable auth inside the handler.
func NewRouter(services Services, pool *pgxpool.Pool, gitCfg config.GitConfig, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Logging(log))

	gitHandler := handler.NewGitHandler(services.Git, services.Store, services.Auth, services.Access, gitCfg, log)
	gitHandler.Register(r)

	health := handler.NewHealthHandler(pool)
	r.Get("/health", health.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(api chi.Router) {
		api.Use(chimiddleware.Timeout(30 * time.Second))
		api.Use(middleware.Metrics)
		api.Use(middleware.Auth(services.Auth))

		handler.NewProjectHandler(services.Projects, services.Access, log).Register(api)
		handler.NewBranchHandler(services.Store, services.Access, log).Register(api)
		handler.NewPrHandler(services.Prs, services.Reviews, services.Merges, services.Access, log).Register(api)
		handler.NewIssueHandler(services.Issues, services.Access, log).Register(api)
	})

	return r
}
