package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"studio/internal/gallery"
	"studio/internal/http/handlers"
	httpapi "studio/internal/http/httpapi"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
	"studio/internal/instagram"
	"studio/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	output, err := storage.NewFileStore(cfg.OutputDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("output directory unavailable")
	}
	styles, err := storage.NewFileStore(cfg.StylesDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("styles directory unavailable")
	}

	creds := credentials.NewStore(cfg.CredentialsPath, credentials.EnvFallback{
		AccessToken: cfg.InstagramAccessToken,
		UserID:      cfg.InstagramUserID,
	}, &logger)
	creds.Load()

	graph := instagram.NewClient(instagram.Options{
		BaseURL: cfg.GraphBaseURL,
		Version: cfg.GraphAPIVersion,
		Logger:  &logger,
	})
	app := instagram.AppConfig{
		AppID:     cfg.InstagramAppID,
		AppSecret: cfg.InstagramAppSecret,
		DialogURL: cfg.OAuthDialogURL,
	}
	if cfg.InstagramConfigured() {
		app.RedirectURL = cfg.OAuthRedirectURL()
	}
	tokens := instagram.NewTokenManager(graph, creds, app, &logger)
	publisher := instagram.NewPublisher(graph, creds, instagram.PublisherOptions{Logger: &logger})

	handlerApp := handlers.NewApp(cfg, &logger, handlers.Deps{
		Gallery:   gallery.NewStore(cfg.GalleryPath, output).WithLogger(&logger),
		Output:    output,
		Styles:    styles,
		Tokens:    tokens,
		Publisher: publisher,
		Driver:    handlers.ExecDriver(cfg.DriverPath, &logger),
	})
	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(handlerApp))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	refreshed := tokens.StartAutoRefresh(ctx)

	logger.Info().
		Str("public_url", cfg.BaseURL()).
		Bool("instagram_configured", tokens.Configured()).
		Msgf("dashboard listening on :%s", cfg.Port)
	if err := server.Run(ctx, cfg.HTTPIdleTimeout); err != nil {
		logger.Error().Err(err).Msg("http server failed")
	}
	stop()
	<-refreshed
	logger.Info().Msg("server stopped")
}
