package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/cors"
	"gopkg.in/yaml.v3"

	"plantops-cloud/internal/auth"
	"plantops-cloud/internal/broadcast"
	commandsapp "plantops-cloud/internal/commands/application"
	commandshttp "plantops-cloud/internal/commands/interfaces/http"
	statesapp "plantops-cloud/internal/devicestate/application"
	devicestate "plantops-cloud/internal/devicestate/domain"
	statespg "plantops-cloud/internal/devicestate/infrastructure/postgres"
	stateshttp "plantops-cloud/internal/devicestate/interfaces/http"
	"plantops-cloud/internal/ingest"
	"plantops-cloud/internal/notify"
	"plantops-cloud/internal/observability/metrics"
	reportsapp "plantops-cloud/internal/reports/application"
	reports "plantops-cloud/internal/reports/domain"
	reportspg "plantops-cloud/internal/reports/infrastructure/postgres"
	reportshttp "plantops-cloud/internal/reports/interfaces/http"
	runtimeapp "plantops-cloud/internal/runtime/application"
	runtimepg "plantops-cloud/internal/runtime/infrastructure/postgres"
	runtimehttp "plantops-cloud/internal/runtime/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	broker := broadcast.NewSSEBroker(logger)

	runtimeRepo := runtimepg.NewRuntimeRepository(db)
	pumpRepo := statespg.NewPumpStateRepository(db)
	valveRepo := statespg.NewValveStateRepository(db)
	reportRepo, err := reportspg.NewReportRepository(db)
	if err != nil {
		logger.Fatalf("report repo error: %v", err)
	}

	accumulator, err := runtimeapp.NewAccumulator(runtimeRepo, broker, logger)
	if err != nil {
		logger.Fatalf("runtime accumulator error: %v", err)
	}
	stateService, err := statesapp.NewService(pumpRepo, valveRepo, broker, logger)
	if err != nil {
		logger.Fatalf("state service error: %v", err)
	}
	reportService, err := reportsapp.NewService(reportRepo, logger)
	if err != nil {
		logger.Fatalf("report service error: %v", err)
	}

	bus, err := ingest.NewBus(ingest.BusConfig{
		BrokerURL:      cfg.MQTT.BrokerURL,
		ClientID:       cfg.MQTT.ClientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		TelemetryTopic: cfg.MQTT.TelemetryTopic,
		ControlTopic:   cfg.MQTT.ControlTopic,
		QoS:            1,
	}, logger)
	if err != nil {
		logger.Fatalf("mqtt bus error: %v", err)
	}
	defer bus.Close()

	notifier := notify.NewSlackNotifier(cfg.SlackToken, cfg.SlackChannel, logger)
	commandService, err := commandsapp.NewService(stateService, bus, broker, logger,
		commandsapp.WithNotifier(notifier),
		commandsapp.WithPendingTTL(cfg.CommandTTL))
	if err != nil {
		logger.Fatalf("command service error: %v", err)
	}

	adapter, err := ingest.NewAdapter(accumulator, stateService, commandService, reportService, logger)
	if err != nil {
		logger.Fatalf("ingest adapter error: %v", err)
	}
	if err := bus.Start(adapter.HandleTelemetry); err != nil {
		logger.Fatalf("mqtt start error: %v", err)
	}

	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Every(1).Minute().Do(func() {
		cleared, err := commandService.SweepTimeouts(context.Background(), time.Now().UTC())
		if err != nil {
			logger.Printf("command sweep error: %v", err)
			return
		}
		if cleared > 0 {
			logger.Printf("command sweep cleared %d stale pending flags", cleared)
		}
	}); err != nil {
		logger.Fatalf("schedule sweep error: %v", err)
	}
	if _, err := scheduler.Every(1).Day().At(cfg.RollupAt).Do(func() {
		day := time.Now().UTC().AddDate(0, 0, -1).Format(reports.DateLayout)
		if err := reportService.RollupDate(context.Background(), day); err != nil {
			logger.Printf("consumption rollup %s error: %v", day, err)
		}
	}); err != nil {
		logger.Fatalf("schedule rollup error: %v", err)
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	runtimeHandler, err := runtimehttp.NewHandler(accumulator)
	if err != nil {
		logger.Fatalf("runtime handler error: %v", err)
	}
	pumpHandler, err := stateshttp.NewHandler(stateService, devicestate.KindPump)
	if err != nil {
		logger.Fatalf("pump handler error: %v", err)
	}
	valveHandler, err := stateshttp.NewHandler(stateService, devicestate.KindValve)
	if err != nil {
		logger.Fatalf("valve handler error: %v", err)
	}
	commandHandler, err := commandshttp.NewHandler(commandService)
	if err != nil {
		logger.Fatalf("command handler error: %v", err)
	}
	reportHandler, err := reportshttp.NewHandler(reportService)
	if err != nil {
		logger.Fatalf("report handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/api/v1/stream/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/runtime/", runtimeHandler)
	mux.Handle("/api/v1/pump-states/", pumpHandler)
	mux.Handle("/api/v1/valve-states/", valveHandler)
	mux.Handle("/api/v1/commands/", commandHandler)
	mux.Handle("/api/v1/consumption/", reportHandler)
	mux.Handle("/api/v1/fuel", reportHandler)
	mux.Handle("/api/v1/equipment/", reportHandler)
	mux.Handle("/api/v1/stream/", broadcast.NewStreamHandler(broker))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: loggingMiddleware(corsHandler.Handler(authMiddleware.Wrap(mux)), logger),
	}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type mqttConfig struct {
	BrokerURL      string `yaml:"broker_url"`
	ClientID       string `yaml:"client_id"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	TelemetryTopic string `yaml:"telemetry_topic"`
	ControlTopic   string `yaml:"control_topic"`
}

type config struct {
	DatabaseURL  string        `yaml:"-"`
	HTTPAddr     string        `yaml:"http_addr"`
	JWTSecret    string        `yaml:"-"`
	MQTT         mqttConfig    `yaml:"mqtt"`
	RollupAt     string        `yaml:"rollup_at"`
	CommandTTL   time.Duration `yaml:"command_ttl"`
	CORSOrigins  []string      `yaml:"cors_origins"`
	SlackToken   string        `yaml:"-"`
	SlackChannel string        `yaml:"slack_channel"`
}

// loadConfig reads env first and overlays the optional yaml file named
// by PLANTOPS_CONFIG. Secrets stay env-only.
func loadConfig() config {
	cfg := config{
		DatabaseURL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:   getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		MQTT: mqttConfig{
			BrokerURL:      getenvDefault("MQTT_BROKER_URL", ""),
			ClientID:       getenvDefault("MQTT_CLIENT_ID", "plantops-cloud"),
			Username:       os.Getenv("MQTT_USERNAME"),
			Password:       os.Getenv("MQTT_PASSWORD"),
			TelemetryTopic: getenvDefault("MQTT_TELEMETRY_TOPIC", "plantops/telemetry/#"),
			ControlTopic:   getenvDefault("MQTT_CONTROL_TOPIC", "plantops/control"),
		},
		RollupAt:     getenvDefault("ROLLUP_DAILY_AT", "00:10"),
		CommandTTL:   getenvDuration("COMMAND_PENDING_TTL", 2*time.Minute),
		CORSOrigins:  []string{getenvDefault("CORS_ORIGIN", "*")},
		SlackToken:   os.Getenv("SLACK_TOKEN"),
		SlackChannel: os.Getenv("SLACK_CHANNEL"),
	}

	if path := os.Getenv("PLANTOPS_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("config file error: %v", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("config parse error: %v", err)
		}
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.MQTT.BrokerURL == "" {
		log.Fatal("MQTT_BROKER_URL is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush forwards to the wrapped writer so event streams keep working
// behind the logging wrapper.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
