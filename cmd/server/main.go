package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/t77yq/flowpulse/internal/alert"
	"github.com/t77yq/flowpulse/internal/event"
	"github.com/t77yq/flowpulse/internal/history"
	"github.com/t77yq/flowpulse/internal/model"
	"github.com/t77yq/flowpulse/internal/monitor"
	"github.com/t77yq/flowpulse/internal/simulator"
	"github.com/t77yq/flowpulse/internal/stream"
	"github.com/t77yq/flowpulse/internal/trigger"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			logger.Fatal("Failed to read config file", zap.Error(err))
		}
		logger.Warn("No config file found, using defaults")
	}

	// Alert sink
	var alerts alert.Sink
	switch viper.GetString("alerts.driver") {
	case "nats":
		nc, err := nats.Connect(viper.GetString("alerts.url"),
			nats.Name(viper.GetString("app.name")),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second))
		if err != nil {
			logger.Fatal("Failed to connect alert sink", zap.Error(err))
		}
		defer nc.Close()
		alerts = alert.NewNATSSink(nc, viper.GetString("alerts.subject_prefix"), logger)
	default:
		alerts = alert.NewLogSink(logger)
	}

	// Core wiring
	bus := event.NewBus(logger)
	roster := simulator.NewRoster()
	roster.Update(initialWorkflows())

	lifecycle := simulator.NewLifecycle(bus, roster, simulator.LifecycleConfig{
		MinDelay:     viper.GetDuration("simulator.log_min_delay"),
		MaxDelay:     viper.GetDuration("simulator.log_max_delay"),
		MinExecution: viper.GetDuration("simulator.exec_min_delay"),
		MaxExecution: viper.GetDuration("simulator.exec_max_delay"),
		SuccessRate:  viper.GetFloat64("simulator.success_rate"),
	}, logger)

	drift := simulator.NewDrift(bus, roster, simulator.DriftConfig{
		MinDelay: viper.GetDuration("simulator.drift_min_delay"),
		MaxDelay: viper.GetDuration("simulator.drift_max_delay"),
	}, logger)

	var transport stream.Transport
	switch viper.GetString("transport.driver") {
	case "websocket":
		transport = stream.NewWebSocketTransport(viper.GetString("transport.url"), logger)
	case "nats":
		transport = stream.NewNATSTransport(viper.GetString("transport.url"), viper.GetString("transport.subject"), logger)
	case "", "none":
		logger.Info("No live transport configured, running simulation only")
	default:
		logger.Fatal("Unknown transport driver", zap.String("driver", viper.GetString("transport.driver")))
	}

	controller := stream.NewController(bus, lifecycle, drift, transport, logger)

	health, err := monitor.NewHealthModel(initialIntegrations(), alerts, monitor.HealthConfig{
		Interval:       viper.GetDuration("health.interval"),
		LatencyStepMs:  viper.GetInt64("health.latency_step_ms"),
		LatencyFloorMs: viper.GetInt64("health.latency_floor_ms"),
		TrendMarginMs:  viper.GetInt64("health.trend_margin_ms"),
		DegradeAboveMs: viper.GetInt64("health.degrade_above_ms"),
		RecoverBelowMs: viper.GetInt64("health.recover_below_ms"),
		FaultRate:      viper.GetFloat64("health.fault_rate"),
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create health model", zap.Error(err))
	}

	merger := history.NewController(bus, roster, alerts, viper.GetInt("history.limit"), logger)
	metrics := monitor.NewMetrics(bus, roster, health, viper.GetDuration("metrics.interval"), logger)

	schedules := trigger.NewCron(lifecycle, logger)
	if err := schedules.Sync(roster.All()); err != nil {
		logger.Warn("Some workflow schedules were skipped", zap.Error(err))
	}

	// Bring everything up. Subscribers first so no event is missed.
	merger.Start()
	metrics.Start()
	health.Start()
	schedules.Start()
	controller.Connect()

	logger.Info("Telemetry stream up", zap.String("state", string(controller.State())))

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Periodic status report
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				stats := metrics.Stats()
				logger.Info("Stream status",
					zap.String("state", string(controller.State())),
					zap.Int("history", merger.Len()),
					zap.Int64("executions", stats.TotalExecutions),
					zap.Float64("success_rate", stats.SuccessRate))

				for _, ev := range merger.Events(5) {
					logger.Info("Recent execution",
						zap.String("id", ev.ID),
						zap.String("workflow", ev.WorkflowName),
						zap.String("status", string(ev.Status)),
						zap.Int64("duration_ms", ev.DurationMs))
				}
			}
		}
	}()

	sig := <-sigCh
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	close(done)

	controller.Disconnect()
	schedules.Stop()
	health.Stop()
	metrics.Stop()
	merger.Stop()

	logger.Info("Server shutting down gracefully")
}

// initialWorkflows seeds the roster with the dashboard's fixture data so the
// stream is alive on boot.
func initialWorkflows() []model.Workflow {
	lastRun := func(ago time.Duration) *time.Time {
		t := time.Now().Add(-ago)
		return &t
	}

	return []model.Workflow{
		{
			ID:          "1",
			Name:        "Lead Sync: Form to Slack",
			Description: "Notify the sales channel when a high-value lead submits the website form.",
			Status:      model.WorkflowStatusActive,
			LastRun:     lastRun(30 * time.Minute),
			Nodes:       []string{"Webhook", "Filter", "Slack"},
			SuccessRate: 98,
			Tags:        []string{"Sales", "Notifications"},
		},
		{
			ID:          "2",
			Name:        "Weekly Report Generator",
			Description: "Pull data from PostgreSQL, format in Google Sheets, and email PDF.",
			Status:      model.WorkflowStatusActive,
			LastRun:     lastRun(24 * time.Hour),
			Nodes:       []string{"Cron", "PostgreSQL", "Google Sheets", "Gmail"},
			SuccessRate: 100,
			Schedule:    "0 0 9 * * 1",
			Tags:        []string{"Reporting", "Data"},
		},
		{
			ID:          "3",
			Name:        "Customer Onboarding",
			Description: "Send welcome email series and add to CRM.",
			Status:      model.WorkflowStatusInactive,
			LastRun:     lastRun(35 * 24 * time.Hour),
			Nodes:       []string{"Stripe", "Mailchimp", "Salesforce"},
			SuccessRate: 92,
			Tags:        []string{"Onboarding", "Email"},
		},
	}
}

func initialIntegrations() []model.Integration {
	now := time.Now()

	return []model.Integration{
		{
			ID: "1", Name: "Gmail", Category: "Communication",
			Connected: true, Status: model.IntegrationStatusHealthy,
			LatencyMs: 45, LatencyTrend: model.TrendStable,
			LastChecked: now, Uptime: 99.9,
		},
		{
			ID: "2", Name: "Slack", Category: "Communication",
			Connected: true, Status: model.IntegrationStatusHealthy,
			LatencyMs: 62, LatencyTrend: model.TrendStable,
			LastChecked: now, Uptime: 99.8,
		},
		{
			ID: "3", Name: "Google Sheets", Category: "Productivity",
			Connected: true, Status: model.IntegrationStatusDegraded,
			LatencyMs: 420, LatencyTrend: model.TrendDegrading,
			LastChecked: now, Uptime: 98.5,
			ErrorMessage: "High latency detected",
		},
		{
			ID: "4", Name: "Notion", Category: "Productivity",
			Connected: false, Status: model.IntegrationStatusDisconnected,
			LatencyMs: 0, LatencyTrend: model.TrendStable,
			LastChecked: now.Add(-24 * time.Hour), Uptime: 0,
		},
		{
			ID: "5", Name: "PostgreSQL", Category: "Database",
			Connected: true, Status: model.IntegrationStatusHealthy,
			LatencyMs: 12, LatencyTrend: model.TrendStable,
			LastChecked: now, Uptime: 100,
		},
		{
			ID: "6", Name: "GitHub", Category: "Utility",
			Connected: true, Status: model.IntegrationStatusExpired,
			LatencyMs: 0, LatencyTrend: model.TrendStable,
			LastChecked: now, Uptime: 95.5,
			ErrorMessage: "OAuth token expired",
		},
	}
}
