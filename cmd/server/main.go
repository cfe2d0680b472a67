package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/allanbts17/zoom-meeting-bot/internal/api"
	"github.com/allanbts17/zoom-meeting-bot/internal/bot"
	"github.com/allanbts17/zoom-meeting-bot/internal/browser"
	"github.com/allanbts17/zoom-meeting-bot/internal/config"
	"github.com/allanbts17/zoom-meeting-bot/internal/mediaserver"
	"github.com/allanbts17/zoom-meeting-bot/internal/profile"
	"github.com/allanbts17/zoom-meeting-bot/internal/ratelimit"
	"github.com/allanbts17/zoom-meeting-bot/internal/session"
	"github.com/allanbts17/zoom-meeting-bot/internal/storage"
	"github.com/allanbts17/zoom-meeting-bot/internal/video"
	"github.com/allanbts17/zoom-meeting-bot/pkg/models"
)

func main() {
	// .env is optional; system environment wins.
	_ = godotenv.Load()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if err := os.MkdirAll(cfg.StagingDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create staging directory")
	}

	ctx := context.Background()

	store, err := storage.NewManager(ctx, cfg.GCSBucket, cfg.CredentialsFile, cfg.StagingDir,
		log.With().Str("component", "storage").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create storage manager")
	}
	defer store.Close()

	processor := video.NewProcessor(cfg.FFmpegBin, cfg.FFprobeBin,
		log.With().Str("component", "video").Logger())

	profiles, err := profile.NewStore(cfg.ProfileDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create profile store")
	}

	factory := botFactory(cfg, store, processor, profiles, log)
	registry := session.NewRegistry(factory, cfg.MaxSessions,
		time.Duration(cfg.SessionTimeout)*time.Second,
		log.With().Str("component", "session").Logger())

	mediaHandler := mediaserver.NewHandler(cfg.StagingDir,
		log.With().Str("component", "mediaserver").Logger())

	limiter := ratelimit.NewLimiter(30, 5)

	handler := api.NewHandler(registry, store, log.With().Str("component", "api").Logger())
	router := handler.Routes(api.NewProfileHandler(profiles), mediaHandler, limiter, log)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
		// No WriteTimeout: media streaming and join waits outlive any
		// sensible fixed value; per-operation deadlines bound the slow paths.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("media", cfg.MediaBaseURL).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	registry.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("stopped")
}

// botFactory builds one bot per session: a launcher (local or container),
// the chromedp runner on top, and the controller wired to the shared store
// and transcoder. The cleanup archives the profile, if one was used.
func botFactory(cfg *config.Config, store *storage.Manager, processor *video.Processor,
	profiles *profile.Store, log zerolog.Logger) session.Factory {

	return func(sessionID string, req models.CreateSessionRequest) (*bot.Bot, func(), error) {
		blog := log.With().Str("session", sessionID).Logger()

		headless := cfg.Headless
		if req.Headless != nil {
			headless = *req.Headless
		}

		opts := browser.Options{Headless: headless}

		var cleanup func()
		if req.ProfileID != "" {
			userDataDir, err := profiles.Materialize(req.ProfileID)
			if err != nil {
				return nil, nil, err
			}
			opts.UserDataDir = userDataDir
			profileID := req.ProfileID
			cleanup = func() {
				if err := profiles.Save(profileID, userDataDir); err != nil {
					blog.Warn().Err(err).Str("profile", profileID).Msg("failed to archive profile")
				}
			}
		}

		var launcher browser.Launcher
		if cfg.BrowserMode == config.ModeContainer {
			cl, err := browser.NewContainerLauncher(cfg.ChromeImage, sessionID, opts,
				blog.With().Str("component", "browser").Logger())
			if err != nil {
				return nil, nil, err
			}
			launcher = cl
		} else {
			launcher = browser.NewLocalLauncher(opts)
		}

		runner := bot.NewRunner(launcher, blog.With().Str("component", "driver").Logger())

		b := bot.New(bot.Config{
			Credentials: bot.Credentials{
				Email:    cfg.ZoomEmail,
				Password: cfg.ZoomPassword,
			},
			MediaBaseURL: cfg.MediaBaseURL,
			CaptureAudio: true,
		}, store, processor, runner, blog)

		return b, cleanup, nil
	}
}
