package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jkaberg/genie-hass/internal/app"
	"github.com/jkaberg/genie-hass/internal/bus"
	"github.com/jkaberg/genie-hass/internal/config"
	"github.com/jkaberg/genie-hass/internal/httpapi"
	"github.com/jkaberg/genie-hass/internal/mqtt"
	"github.com/jkaberg/genie-hass/internal/netutil"
	"github.com/jkaberg/genie-hass/internal/rituals"
	"github.com/jkaberg/genie-hass/internal/transmission"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// version is injected at build time via ldflags
var version = "dev"

func main() {
	// A missing .env is fine; the environment and flags still apply.
	_ = godotenv.Load()

	cfg := parseFlags()

	logger := setupLogger(cfg.Verbose)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	logger.WithFields(logrus.Fields{
		"version":      version,
		"bridge_id":    cfg.BridgeID,
		"fetch_int":    cfg.FetchInterval,
		"update_int":   cfg.UpdateInterval,
		"sensor_kinds": cfg.SensorKinds(),
	}).Info("Starting genie-hass")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("Shutdown signal received")
		cancel()
	}()

	// Core clients ---------------------------------------------------------------
	httpClient := netutil.NewHTTPClient(cfg.GetAPITimeout(), logger)
	ritualsClient := rituals.NewClient(cfg.RitualsURL, cfg.Username, cfg.Password, httpClient, logger)

	// Transmitter ----------------------------------------------------------------
	var tx transmission.Transmitter
	if cfg.HasMQTT() {
		mqttClient, err := mqtt.NewClient(cfg.MQTTUrl, cfg.BridgeID, config.MQTTTimeout, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create MQTT client")
		}
		defer mqttClient.Disconnect(250)
		tx = transmission.NewMQTTTransmitter(mqttClient, cfg.BridgeID, cfg.DiscoveryPrefix, version, logger)
		logger.Info("MQTT transmitter ready")
	} else {
		logger.Warn("No MQTT broker configured; values will only be logged")
	}

	messageBus := bus.New()

	// Local state endpoint -------------------------------------------------------
	if cfg.HasHTTP() {
		srv := &http.Server{
			Addr:              cfg.HTTPListen,
			Handler:           httpapi.NewRouter(messageBus, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.WithField("addr", cfg.HTTPListen).Info("HTTP state endpoint listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("HTTP server stopped")
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Run application ------------------------------------------------------------
	if err := app.Run(ctx, cfg, ritualsClient, tx, messageBus, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("genie-hass exited with error")
	}
	logger.Info("genie-hass stopped")
}

// -----------------------------------------------------------------------------
// Helpers & Flags
// -----------------------------------------------------------------------------

func parseFlags() *config.Config {
	cfg := config.GetDefaultConfig()

	showVersion := flag.Bool("version", false, "Show version and exit")

	flag.StringVar(&cfg.Username, "username", getEnv("GENIE_HASS_USERNAME", cfg.Username), "Rituals account e-mail")
	flag.StringVar(&cfg.Password, "password", getEnv("GENIE_HASS_PASSWORD", cfg.Password), "Rituals account password")
	flag.StringVar(&cfg.RitualsURL, "rituals-url", getEnv("GENIE_HASS_RITUALS_URL", cfg.RitualsURL), "Rituals cloud base URL")
	flag.StringVar(&cfg.MQTTUrl, "mqtt-url", getEnv("GENIE_HASS_MQTT_URL", cfg.MQTTUrl), "MQTT URL")
	flag.StringVar(&cfg.DiscoveryPrefix, "discovery-prefix", getEnv("GENIE_HASS_DISCOVERY_PREFIX", cfg.DiscoveryPrefix), "HA discovery prefix")
	flag.StringVar(&cfg.BridgeID, "bridge-id", getEnv("GENIE_HASS_BRIDGE_ID", cfg.BridgeID), "Bridge identifier")
	flag.StringVar(&cfg.Sensors, "sensors", getEnv("GENIE_HASS_SENSORS", cfg.Sensors), "Comma separated sensor kinds (default all)")
	flag.StringVar(&cfg.HTTPListen, "http-listen", getEnv("GENIE_HASS_HTTP_LISTEN", cfg.HTTPListen), "Serve /state on this address (e.g. :8080)")
	flag.BoolVar(&cfg.Verbose, "verbose", getEnv("GENIE_HASS_VERBOSE", "false") == "true", "Verbose logging")

	apiTimeoutStr := flag.String("api-timeout", getEnv("GENIE_HASS_API_TIMEOUT", ""), "Rituals API timeout (e.g. 30s)")
	fetchIntervalStr := flag.String("fetch-interval", getEnv("GENIE_HASS_FETCH_INTERVAL", ""), "Minimum time between cloud fetches (e.g. 5m)")
	updateIntervalStr := flag.String("update-interval", getEnv("GENIE_HASS_UPDATE_INTERVAL", ""), "Entity refresh interval (e.g. 30s)")
	forceUpdateIntervalStr := flag.String("force-update-interval", getEnv("GENIE_HASS_FORCE_UPDATE_INTERVAL", ""), "Publish all entities at this interval even if unchanged (0 = disabled)")

	flag.Parse()

	if *showVersion {
		fmt.Printf("genie-hass %s\n", version)
		os.Exit(0)
	}

	if d, ok := parseDuration(*apiTimeoutStr, false); ok {
		cfg.APITimeout = int(d / time.Second)
	}
	if d, ok := parseDuration(*fetchIntervalStr, true); ok {
		cfg.FetchInterval = d
	}
	if d, ok := parseDuration(*updateIntervalStr, false); ok {
		cfg.UpdateInterval = d
	}
	if d, ok := parseDuration(*forceUpdateIntervalStr, true); ok {
		cfg.ForceUpdateInterval = d
	}

	return cfg
}

// parseDuration accepts Go durations ("90s") or plain seconds ("90").
func parseDuration(s string, allowZero bool) (time.Duration, bool) {
	if s == "" {
		return 0, false
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		v, err2 := strconv.Atoi(s)
		if err2 != nil {
			return 0, false
		}
		d = time.Duration(v) * time.Second
	}
	if d < 0 || (d == 0 && !allowZero) {
		return 0, false
	}
	return d, true
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func setupLogger(verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}
