package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	gatewayecho "github.com/ruicore/dingbridge/api/echo"
	"github.com/ruicore/dingbridge/cache"
	"github.com/ruicore/dingbridge/config"
	"github.com/ruicore/dingbridge/handler"
	"github.com/ruicore/dingbridge/internal/dingcrypto"
	"github.com/ruicore/dingbridge/internal/server"
	"github.com/ruicore/dingbridge/internal/telemetry"
	gatewaylog "github.com/ruicore/dingbridge/log"
	"github.com/ruicore/dingbridge/remote"
	"github.com/ruicore/dingbridge/repository"
	"github.com/ruicore/dingbridge/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	gatewaylog.Setup(cfg.LogLevel, cfg.LogPretty)
	log.Info().
		Str("mode", string(cfg.DeployMode)).
		Str("http_port", cfg.HTTPPort).
		Msg("starting dingbridge")

	tp, err := telemetry.InitTracer(cfg.OtelServiceName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	reg := prometheus.NewRegistry()
	mp, err := telemetry.InitMeterProvider(reg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize meter provider")
	}

	ctx := context.Background()
	repo, closeRepo, err := repository.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize repository")
	}

	codec, err := dingcrypto.NewCodec(cfg.CallbackToken, cfg.CallbackAESKey, cfg.SuiteKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid callback crypto configuration")
	}

	tokens := cache.NewTokenCache()
	defer tokens.Close()

	ding := services.NewDingService(services.Options{
		SuiteKey:    cfg.SuiteKey,
		SuiteSecret: cfg.SuiteSecret,
		TemplateID:  cfg.TemplateID,
		Mode:        cfg.DeployMode,
		Endpoints: services.PlatformEndpoints{
			CorpTokenURL:   cfg.CorpTokenURL,
			SuiteTokenURL:  cfg.SuiteTokenURL,
			UserTokenURL:   cfg.UserTokenURL,
			UserContactURL: cfg.UserContactURL,
			UnionIDURL:     cfg.UnionIDURL,
			SendMessageURL: cfg.SendMessageURL,
		},
		Repo:   repo,
		Tokens: tokens,
	})
	dispatcher := handler.NewDispatcher(repo, cfg.SuiteKey, ding)

	e := server.NewEcho(reg)
	gatewayecho.NewCallbackAPI(codec, dispatcher, ding, repo).RegisterRoutes(e)

	switch cfg.DeployMode {
	case config.ModeCloud:
		gatewayecho.NewInternalAPI(repo, ding, cfg.SuiteKey, cfg.SecretUser, cfg.SecretPassword).RegisterRoutes(e)
	case config.ModeLocal:
		iam := services.NewIAMService(cfg.IAMHost, nil)
		cloud := remote.NewClient(cfg.CloudHost, cfg.SecretUser, cfg.SecretPassword, nil)
		gatewayecho.NewLocalAPI(repo, iam, cloud, cfg.SiteURL).RegisterRoutes(e)
	case config.ModeDevDebug:
		gatewayecho.NewInternalAPI(repo, ding, cfg.SuiteKey, cfg.SecretUser, cfg.SecretPassword).RegisterRoutes(e)
		iam := services.NewIAMService(cfg.IAMHost, nil)
		cloud := remote.NewClient(cfg.CloudHost, cfg.SecretUser, cfg.SecretPassword, nil)
		gatewayecho.NewLocalAPI(repo, iam, cloud, cfg.SiteURL).RegisterRoutes(e)
	}

	srv := server.NewHTTPServer(":"+cfg.HTTPPort, e)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()
	log.Info().Str("addr", srv.Addr).Msg("http server listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
	if err := closeRepo(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("repository shutdown failed")
	}
	telemetry.Shutdown(shutdownCtx, tp, mp)
	log.Info().Msg("stopped")
}
