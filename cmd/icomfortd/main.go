package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lukezbihlyj/icomfort-go/internal/handlers"
	"github.com/lukezbihlyj/icomfort-go/internal/history"
	"github.com/lukezbihlyj/icomfort-go/internal/icomfort"
	"github.com/lukezbihlyj/icomfort-go/internal/logger"
	"github.com/lukezbihlyj/icomfort-go/internal/metrics"
	"github.com/lukezbihlyj/icomfort-go/internal/server"
	"github.com/lukezbihlyj/icomfort-go/internal/service"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
)

func main() {
	if err := loadConfig(); err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(viper.GetString("log_level"))

	// open the history DB
	db, err := history.Open(dbPath(log))
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()
	repos := history.New(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// pump observability: prometheus counters, with reconnects mirrored into
	// the history log
	registry := prometheus.NewRegistry()
	pumpStats := history.NewPumpRecorder(ctx, metrics.NewPump(registry), repos.Events)

	// cloud client
	client := icomfort.New(cloudConfig(log), log.Named("icomfort"), pumpStats)

	// wire dependencies
	services := service.NewService(client, repos, authConfig())
	apiHandler := handlers.NewHandler(services, log.Named("api"), promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// observers: websocket stream and telemetry history
	client.OnUpdate(apiHandler.ZoneUpdated)
	client.OnUpdate(func(zs icomfort.ZoneState) {
		_ = repos.Events.Append(ctx, history.Event{
			Type:        history.TypeTelemetry,
			Description: "zone update",
			Metadata: map[string]any{
				"zone":        zs.ID,
				"temperature": zs.Temperature,
				"humidity":    zs.Humidity,
				"system_mode": zs.SystemMode,
			},
		})
	})

	// connect to the cloud and wait (best effort) for first data
	if err := client.ServerConnect(ctx); err != nil {
		log.Fatalw("cloud connect failed", "err", err)
	}
	if err := client.Initialize(ctx); err != nil {
		log.Fatalw("initialize interrupted", "err", err)
	}

	client.StartMessagePump(func(err error) {
		_ = repos.Events.Append(ctx, history.Event{
			Type:        history.TypeError,
			Description: err.Error(),
		})
	})

	// start HTTP server
	srv := &server.Server{}
	go func() {
		port := viper.GetString("port")
		if port == "" {
			port = "8087"
		}
		if err := srv.Run(port, apiHandler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()

	waitForShutdown(cancel, client, srv, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	viper.SetDefault("log_level", logger.InfoLevel)
	return viper.ReadInConfig()
}

func dbPath(log *logger.Logger) string {
	path := viper.GetString("db.path")
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "icomfortd.db")
		path = "icomfortd.db"
	}
	return path
}

// cloudConfig maps the config file onto the client's Config. Unset tuning
// fields fall back to the client's own defaults.
func cloudConfig(log *logger.Logger) icomfort.Config {
	clientID := viper.GetString("cloud.client_id")
	if clientID == "" {
		// Without a configured id the SenderID changes every restart and the
		// service queues messages under a fresh mailbox.
		clientID = "icomfortd_" + uuid.NewString()
		log.Warnw("cloud.client_id not set; generated ephemeral id", "client_id", clientID)
	}
	return icomfort.Config{
		Email:              viper.GetString("cloud.email"),
		Password:           viper.GetString("cloud.password"),
		ClientID:           clientID,
		ApplicationID:      viper.GetString("cloud.application_id"),
		AuthenticateURL:    viper.GetString("cloud.authenticate_url"),
		LoginURL:           viper.GetString("cloud.login_url"),
		RetrieveURL:        viper.GetString("cloud.retrieve_url"),
		RequestDataURL:     viper.GetString("cloud.request_data_url"),
		PublishURL:         viper.GetString("cloud.publish_url"),
		PollInterval:       viper.GetDuration("cloud.poll_interval"),
		RequestTimeout:     viper.GetDuration("cloud.request_timeout"),
		InitializeTimeout:  viper.GetDuration("cloud.initialize_timeout"),
		RefreshBuffer:      viper.GetDuration("cloud.refresh_buffer"),
		FailureThreshold:   viper.GetInt("cloud.failure_threshold"),
		MessageBatch:       viper.GetInt("cloud.message_batch"),
		ManualScheduleBase: viper.GetInt("cloud.manual_schedule_base"),
	}
}

func authConfig() service.AuthConfig {
	return service.AuthConfig{
		Username:     viper.GetString("api.username"),
		PasswordHash: viper.GetString("api.password_hash"),
		SigningKey:   viper.GetString("api.signing_key"),
		TokenTTL:     viper.GetDuration("api.token_ttl"),
	}
}

// waitForShutdown blocks on SIGINT/SIGTERM and tears everything down in
// order: pump first, then the HTTP server.
func waitForShutdown(cancel context.CancelFunc, client *icomfort.Client, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down...")
	cancel()
	client.Shutdown()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}
