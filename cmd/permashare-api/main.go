package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/permashare/backend/internal/config"
	"github.com/permashare/backend/internal/images"
	"github.com/permashare/backend/internal/logging"
	"github.com/permashare/backend/internal/notes"
	"github.com/permashare/backend/internal/objstore"
	"github.com/permashare/backend/internal/render"
	"github.com/permashare/backend/internal/retention"
	"github.com/permashare/backend/internal/server"
	"github.com/permashare/backend/internal/themes"
)

const version = "1.2.0"

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "permashare-api",
		Short: "Permashare note publishing service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one retention sweep and exit",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context())
		},
	}
	rootCmd.AddCommand(sweepCmd)

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("base-url", defaults.GetString("base.url"), "Public base URL for share links")
	cmd.PersistentFlags().String("storage-backend", defaults.GetString("storage.backend"), "Storage backend (sqlite or s3)")
	cmd.PersistentFlags().String("sqlite-path", defaults.GetString("sqlite.path"), "SQLite object store path")
	cmd.PersistentFlags().String("s3-bucket", "", "S3 bucket name")
	cmd.PersistentFlags().String("s3-endpoint", "", "S3 endpoint URL (for R2 and other S3-compatible providers)")
	cmd.PersistentFlags().String("sweep-cron", defaults.GetString("sweep.cron"), "Retention sweep schedule (cron expression)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("auth-secret", "", "Shared API secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "base.url", "base-url")
	bindFlag(cmd, "storage.backend", "storage-backend")
	bindFlag(cmd, "sqlite.path", "sqlite-path")
	bindFlag(cmd, "s3.bucket", "s3-bucket")
	bindFlag(cmd, "s3.endpoint", "s3-endpoint")
	bindFlag(cmd, "sweep.cron", "sweep-cron")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.secret", "auth-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile == "" {
		return nil
	}

	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", cfgFile, err)
	}
	return nil
}

type application struct {
	config     config.AppConfig
	logger     *zap.Logger
	store      objstore.Store
	repository *notes.Repository
	themeStore *themes.Store
	imageStore *images.Store
	sweeper    *retention.Sweeper
	closeStore func() error
}

func buildApplication(ctx context.Context) (*application, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	var store objstore.Store
	closeStore := func() error { return nil }
	switch appConfig.StorageBackend {
	case config.BackendS3:
		s3Store, err := objstore.NewS3Store(ctx, objstore.S3Config{
			Bucket:    appConfig.S3Bucket,
			Region:    appConfig.S3Region,
			Endpoint:  appConfig.S3Endpoint,
			AccessKey: appConfig.S3AccessKey,
			SecretKey: appConfig.S3SecretKey,
		}, logger)
		if err != nil {
			return nil, err
		}
		store = s3Store
	default:
		sqliteStore, err := objstore.OpenSQLite(appConfig.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		store = sqliteStore
		closeStore = sqliteStore.Close
	}

	repository, err := notes.NewRepository(notes.RepositoryConfig{
		Store:   store,
		Clock:   time.Now,
		Logger:  logger,
		BaseURL: appConfig.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	themeStore, err := themes.NewStore(themes.StoreConfig{
		Store:  store,
		Clock:  time.Now,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	imageStore, err := images.NewStore(images.StoreConfig{
		Store:   store,
		Logger:  logger,
		BaseURL: appConfig.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	sweeper, err := retention.NewSweeper(retention.SweeperConfig{
		Store:      store,
		Repository: repository,
		Images:     imageStore,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	return &application{
		config:     appConfig,
		logger:     logger,
		store:      store,
		repository: repository,
		themeStore: themeStore,
		imageStore: imageStore,
		sweeper:    sweeper,
		closeStore: closeStore,
	}, nil
}

func runServer(ctx context.Context) error {
	app, err := buildApplication(ctx)
	if err != nil {
		return err
	}
	defer app.logger.Sync() //nolint:errcheck
	defer app.closeStore()  //nolint:errcheck

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Store:      app.store,
		Repository: app.repository,
		Themes:     app.themeStore,
		Images:     app.imageStore,
		Renderer:   render.NewEngine(),
		AuthSecret: app.config.AuthSecret,
		Version:    version,
		Logger:     app.logger,
	})
	if err != nil {
		return err
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(app.config.SweepCron, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()
		if _, err := app.sweeper.Sweep(sweepCtx); err != nil {
			app.logger.Error("scheduled retention sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", app.config.SweepCron, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	httpServer := &http.Server{
		Addr:    app.config.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server starting",
			zap.String("address", app.config.HTTPAddress),
			zap.String("backend", string(app.config.StorageBackend)),
			zap.String("version", version))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runSweep(ctx context.Context) error {
	app, err := buildApplication(ctx)
	if err != nil {
		return err
	}
	defer app.logger.Sync() //nolint:errcheck
	defer app.closeStore()  //nolint:errcheck

	result, err := app.sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	app.logger.Info("manual retention sweep complete",
		zap.Int("scanned", result.Scanned),
		zap.Int("expired", result.Expired),
		zap.Int("failed", result.Failed))
	return nil
}
