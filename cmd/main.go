package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcehub/sourcehub/internal/cache"
	"github.com/sourcehub/sourcehub/internal/config"
	"github.com/sourcehub/sourcehub/internal/events"
	"github.com/sourcehub/sourcehub/internal/infrastructure/db"
	"github.com/sourcehub/sourcehub/internal/infrastructure/repository"
	"github.com/sourcehub/sourcehub/internal/transport"
	"github.com/sourcehub/sourcehub/internal/usecase"
	"github.com/sourcehub/sourcehub/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zapLog, err := logger.NewLogger(cfg.App.Env)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer zapLog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewDatabase(ctx, cfg.Database.URL, zapLog)
	if err != nil {
		zapLog.Fatal("database init", zap.Error(err))
	}
	defer pool.Close()

	users := repository.NewUserRepository(pool, zapLog)
	projects := repository.NewProjectRepository(pool, zapLog)
	members := repository.NewMemberRepository(pool, zapLog)
	repos := repository.NewRepoRepository(pool, zapLog)
	branches := repository.NewBranchRepository(pool, zapLog)
	commits := repository.NewCommitRepository(pool, zapLog)
	protections := repository.NewProtectionRepository(pool, zapLog)
	prs := repository.NewPrRepository(pool, zapLog)
	reviews := repository.NewReviewRepository(pool, zapLog)
	issues := repository.NewIssueRepository(pool, zapLog)

	sink := events.NewLogSink(zapLog)

	authService := usecase.NewAuthService(usecase.NewDBVerifier(users), zapLog)
	accessService := usecase.NewAccessService(members, projects, cache.NewMemoryStore(), cfg.Cache.PermissionTTL, zapLog)
	repoService := usecase.NewRepoService(repos, branches, commits, protections, zapLog)
	projectService := usecase.NewProjectService(projects, members, accessService, repoService, protections, zapLog)
	prService := usecase.NewPrService(prs, repoService, sink, zapLog)
	reviewService := usecase.NewReviewService(reviews, prs, repoService, sink, zapLog)
	mergeService := usecase.NewMergeService(prs, reviews, projects, repoService, branches, commits, sink, zapLog)
	issueService := usecase.NewIssueService(issues, sink, zapLog)
	gitService := usecase.NewGitService(repoService, reviewService, zapLog)

	router := transport.NewRouter(transport.Services{
		Auth:     authService,
		Access:   accessService,
		Projects: projectService,
		Store:    repoService,
		Git:      gitService,
		Prs:      prService,
		Reviews:  reviewService,
		Merges:   mergeService,
		Issues:   issueService,
	}, pool, cfg.Git, zapLog)

	server := transport.NewServer(cfg.App.Port, router, zapLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			zapLog.Fatal("http server", zap.Error(err))
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLog.Error("shutdown", zap.Error(err))
		}
	}
}
