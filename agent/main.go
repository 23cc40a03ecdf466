package main

import (
	"context"
	"errors"
	"flag"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/astralux/licensing/pkg/client"
	"github.com/astralux/licensing/pkg/config"
	"github.com/astralux/licensing/pkg/hwid"
	"github.com/astralux/licensing/pkg/license"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	configPath = flag.String("config", "/etc/license/agent.yaml", "Config file path")
	serverURL  = flag.String("server", "", "License server URL (overrides config)")
	licenseKey = flag.String("license", "", "License key (overrides config)")
	once       = flag.Bool("once", false, "Validate once and exit")
	Version    = "dev"
)

// Agent keeps one license validated from this machine.
type Agent struct {
	key      string
	hwid     string
	client   *client.Client
	interval time.Duration
	jitter   time.Duration
}

func main() {
	flag.Parse()
	configureAgentLogger()
	log.Info().Str("version", Version).Msg("license agent starting")

	cfg, err := config.LoadAgent(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *licenseKey != "" {
		cfg.LicenseKey = *licenseKey
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	applyAgentLogging(cfg.Logging)

	collector := hwid.Collector{}
	if cfg.MachineIDPath != "" {
		collector.MachineIDPaths = []string{cfg.MachineIDPath}
	}
	id, err := collector.Fingerprint()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to derive hardware id")
	}

	agent := &Agent{
		key:  cfg.LicenseKey,
		hwid: id,
		client: client.New(cfg.ServerURL,
			client.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.RequestTimeout) * time.Second}),
			client.WithRetrier(client.NewRetrier(cfg.Retry.InitialMs, cfg.Retry.MaxMs, cfg.Retry.MaxRetries)),
			client.WithUserAgent("license-agent/"+Version),
		),
		interval: time.Duration(cfg.IntervalS) * time.Second,
		jitter:   time.Duration(cfg.IntervalS) * time.Second / 10,
	}
	log.Info().Str("server", cfg.ServerURL).Str("hwid", id[:12]).Dur("interval", agent.interval).Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		if err := agent.check(ctx); err != nil {
			os.Exit(1)
		}
		return
	}
	if err := agent.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("license no longer usable on this machine")
		os.Exit(1)
	}
}

// run validates immediately and then on every tick until ctx ends or the
// server rejects the license for good.
func (a *Agent) run(ctx context.Context) error {
	if err := a.check(ctx); isFinal(err) {
		return err
	}
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if a.jitter > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(rand.Int63n(int64(a.jitter)))):
			}
		}
		if err := a.check(ctx); isFinal(err) {
			return err
		}
	}
}

func (a *Agent) check(ctx context.Context) error {
	res, err := a.client.Redeem(ctx, a.key, a.hwid)
	if err != nil {
		log.Warn().Err(err).Str("code", string(license.KindOf(err))).Msg("license validation failed")
		return err
	}
	log.Info().Str("message", res.Message).Msg("license valid")
	return nil
}

// isFinal reports whether err means the license cannot become valid again
// without operator action.
func isFinal(err error) bool {
	if err == nil || client.IsRetryable(err) {
		return false
	}
	switch license.KindOf(err) {
	case license.KindRevoked, license.KindNotFound, license.KindHwidMismatch, license.KindNotRedeemed:
		return true
	default:
		return false
	}
}

func configureAgentLogger() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.DurationFieldUnit = time.Millisecond

	level := zerolog.InfoLevel
	if raw := strings.ToLower(strings.TrimSpace(os.Getenv("LICENSE_AGENT_LOG_LEVEL"))); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	log.Logger = newAgentLogger(false).Level(level)
}

func applyAgentLogging(cfg config.LoggingConfig) {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level))); err == nil && parsed != zerolog.NoLevel {
		level = parsed
	}
	log.Logger = newAgentLogger(cfg.JSON).Level(level)
}

func newAgentLogger(json bool) zerolog.Logger {
	if json {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(writer).With().Timestamp().Logger()
}
