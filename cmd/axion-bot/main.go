// Command axion-bot runs the Axion build-checker Telegram webhook service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"

	"github.com/rmux/axion-bot/bot"
	"github.com/rmux/axion-bot/cache"
	"github.com/rmux/axion-bot/config"
	"github.com/rmux/axion-bot/ota"
	"github.com/rmux/axion-bot/registry"
	"github.com/rmux/axion-bot/server"
	"github.com/rmux/axion-bot/telegram"
)

// CLI is the command line surface. Flags override config file values.
type CLI struct {
	Config        string        `help:"Path to YAML config file." type:"existingfile" optional:""`
	Token         string        `help:"Telegram bot token." env:"AXION_BOT_TOKEN"`
	AdminChatID   int64         `help:"Chat id allowed to run admin commands." env:"AXION_ADMIN_CHAT_ID"`
	Address       string        `help:"Address to listen on." env:"AXION_ADDRESS"`
	DevicesURL    string        `help:"Device registry URL." env:"AXION_DEVICES_URL"`
	DevicesFormat string        `help:"Device registry shape." enum:"structured,flat,markdown," default:"" env:"AXION_DEVICES_FORMAT"`
	OTAURL        string        `help:"OTA feed base URL." env:"AXION_OTA_URL"`
	CacheTTL      time.Duration `help:"Cache time-to-live." env:"AXION_CACHE_TTL"`
	LogLevel      string        `help:"Log level." enum:"debug,info,warn,error," default:"" env:"AXION_LOG_LEVEL"`
	LogFormat     string        `help:"Log format." enum:"text,json," default:"" env:"AXION_LOG_FORMAT"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("axion-bot"),
		kong.Description("Telegram webhook bot answering Axion device and OTA build queries."),
	)
	kctx.FatalIfErrorf(run(cli))
}

func run(cli CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logBuf := bot.NewLogBuffer(bot.DefaultLogCapacity)
	logger, err := buildLogger(cfg.Log, logBuf)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	source, err := registry.SelectSource(cfg.Sources.DevicesFormat, logger.With("component", "registry"))
	if err != nil {
		return err
	}
	registryUpstream := registry.NewUpstream(
		registry.WithDevicesURL(cfg.Sources.DevicesURL),
		registry.WithSource(source),
		registry.WithLogger(logger.With("component", "registry")),
	)
	otaUpstream := ota.NewUpstream(
		ota.WithBaseURL(cfg.Sources.OTABaseURL),
		ota.WithLogger(logger.With("component", "ota")),
	)

	dataCache := cache.New(registryUpstream, otaUpstream,
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithLogger(logger.With("component", "cache")),
	)

	sender := telegram.NewClient(cfg.Telegram.Token,
		telegram.WithLogger(logger.With("component", "telegram")),
	)

	endpoints := map[string]string{"devices": registryUpstream.URL()}
	for name, url := range otaUpstream.ProbeURLs() {
		endpoints[name] = url
	}

	dispatcher := bot.NewDispatcher(dataCache, sender,
		bot.WithLogger(logger.With("component", "bot")),
		bot.WithLogBuffer(logBuf),
		bot.WithAdminChatID(cfg.Telegram.AdminChatID),
		bot.WithEndpoints(endpoints),
		bot.WithDescriptorURL(otaUpstream.DescriptorURL),
	)

	srv, err := server.New(server.Config{
		Address:    cfg.Server.Address,
		Dispatcher: dispatcher,
		Cache:      dataCache,
		Logs:       logBuf,
		Logger:     logger.With("component", "server"),
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Handle shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	logger.Info("webhook server started",
		"address", srv.Address(),
		"devices_url", cfg.Sources.DevicesURL,
		"devices_format", cfg.Sources.DevicesFormat,
		"cache_ttl", cfg.Cache.TTL,
	)

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// loadConfig layers CLI flags over the optional config file over defaults.
func loadConfig(cli CLI) (config.Config, error) {
	cfg := config.Default()
	if cli.Config != "" {
		loaded, err := config.Load(cli.Config)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if cli.Token != "" {
		cfg.Telegram.Token = cli.Token
	}
	if cli.AdminChatID != 0 {
		cfg.Telegram.AdminChatID = cli.AdminChatID
	}
	if cli.Address != "" {
		cfg.Server.Address = cli.Address
	}
	if cli.DevicesURL != "" {
		cfg.Sources.DevicesURL = cli.DevicesURL
	}
	if cli.DevicesFormat != "" {
		cfg.Sources.DevicesFormat = cli.DevicesFormat
	}
	if cli.OTAURL != "" {
		cfg.Sources.OTABaseURL = cli.OTAURL
	}
	if cli.CacheTTL != 0 {
		cfg.Cache.TTL = cli.CacheTTL
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Log.Format = cli.LogFormat
	}
	return cfg, nil
}

// buildLogger assembles the slog handler chain: tint or JSON output, teed
// through the in-memory log buffer that backs /logs and !logs.
func buildLogger(cfg config.Log, buf *bot.LogBuffer) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: level})
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	default:
		return nil, fmt.Errorf("invalid log format: %s", cfg.Format)
	}

	return slog.New(bot.NewTeeHandler(handler, buf)), nil
}
