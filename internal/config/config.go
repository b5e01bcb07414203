// Package config loads process configuration the way the teacher's
// cmd/api initConfig does: a YAML file overridden by environment
// variables, with a "." -> "_" key replacer so e.g. correlation.window_minutes
// is overridable via CORRELATION_WINDOW_MINUTES.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable named in the process-configuration surface.
// All tunables are config with defaults; no magic numbers belong in the
// services that consume this struct.
type Config struct {
	ServiceName string
	Port        string
	LogLevel    string
	CORSOrigins []string
	APIKey      string

	DatabaseURL string

	CorrelationWindow time.Duration
	IdempotencyWindow time.Duration

	OnCallServiceURL       string
	NotificationServiceURL string
	IncidentManagementURL  string

	NotificationTimeout time.Duration
	OnCallTimeout       time.Duration
	IncidentTimeout     time.Duration

	DefaultOverrideHours int

	MaxHistorySize       int
	MaxEscalationLogSize int
	MaxLogSize           int

	SeedDefaultSchedules bool
	WebhookURL           string
}

// Load reads defaults, an optional config file named serviceName.yaml
// under ./config, and then environment overrides, mirroring the
// teacher's initConfig wiring order (defaults -> file -> env).
func Load(serviceName string) (*Config, error) {
	v := viper.New()

	v.SetDefault("service.name", serviceName)
	v.SetDefault("server.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("cors.origins", "*")
	v.SetDefault("api.key", "")

	v.SetDefault("database.url", "")

	v.SetDefault("correlation.window_minutes", 5)
	v.SetDefault("idempotency.window_minutes", 5)

	v.SetDefault("oncall.service_url", "http://localhost:8083")
	v.SetDefault("notification.service_url", "http://localhost:8084")
	v.SetDefault("incident.management_url", "http://localhost:8082")

	v.SetDefault("notification.timeout_seconds", 3)
	v.SetDefault("oncall.timeout_seconds", 3)
	v.SetDefault("incident.timeout_seconds", 3)

	v.SetDefault("default.override_hours", 8)

	v.SetDefault("max.history_size", 500)
	v.SetDefault("max.escalation_log_size", 200)
	v.SetDefault("max.log_size", 1000)

	v.SetDefault("seed.default_schedules", false)
	v.SetDefault("webhook.url", "")

	v.SetConfigName(serviceName)
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnv(v, "database.url", "DATABASE_URL")
	bindEnv(v, "correlation.window_minutes", "CORRELATION_WINDOW_MINUTES")
	bindEnv(v, "idempotency.window_minutes", "IDEMPOTENCY_WINDOW_MINUTES")
	bindEnv(v, "oncall.service_url", "ONCALL_SERVICE_URL")
	bindEnv(v, "notification.service_url", "NOTIFICATION_SERVICE_URL")
	bindEnv(v, "incident.management_url", "INCIDENT_MANAGEMENT_URL")
	bindEnv(v, "notification.timeout_seconds", "NOTIFICATION_TIMEOUT")
	bindEnv(v, "oncall.timeout_seconds", "ONCALL_TIMEOUT")
	bindEnv(v, "incident.timeout_seconds", "INCIDENT_TIMEOUT")
	bindEnv(v, "default.override_hours", "DEFAULT_OVERRIDE_HOURS")
	bindEnv(v, "max.history_size", "MAX_HISTORY_SIZE")
	bindEnv(v, "max.escalation_log_size", "MAX_ESCALATION_LOG_SIZE")
	bindEnv(v, "max.log_size", "MAX_LOG_SIZE")
	bindEnv(v, "seed.default_schedules", "SEED_DEFAULT_SCHEDULES")
	bindEnv(v, "webhook.url", "WEBHOOK_URL")
	bindEnv(v, "cors.origins", "CORS_ORIGINS")
	bindEnv(v, "log.level", "LOG_LEVEL")
	bindEnv(v, "api.key", "API_KEY")
	bindEnv(v, "server.port", "PORT")

	cfg := &Config{
		ServiceName:            v.GetString("service.name"),
		Port:                   v.GetString("server.port"),
		LogLevel:               v.GetString("log.level"),
		CORSOrigins:            splitCSV(v.GetString("cors.origins")),
		APIKey:                 v.GetString("api.key"),
		DatabaseURL:            v.GetString("database.url"),
		CorrelationWindow:      time.Duration(v.GetInt("correlation.window_minutes")) * time.Minute,
		IdempotencyWindow:      time.Duration(v.GetInt("idempotency.window_minutes")) * time.Minute,
		OnCallServiceURL:       v.GetString("oncall.service_url"),
		NotificationServiceURL: v.GetString("notification.service_url"),
		IncidentManagementURL:  v.GetString("incident.management_url"),
		NotificationTimeout:    time.Duration(v.GetInt("notification.timeout_seconds")) * time.Second,
		OnCallTimeout:          time.Duration(v.GetInt("oncall.timeout_seconds")) * time.Second,
		IncidentTimeout:        time.Duration(v.GetInt("incident.timeout_seconds")) * time.Second,
		DefaultOverrideHours:   v.GetInt("default.override_hours"),
		MaxHistorySize:         v.GetInt("max.history_size"),
		MaxEscalationLogSize:   v.GetInt("max.escalation_log_size"),
		MaxLogSize:             v.GetInt("max.log_size"),
		SeedDefaultSchedules:   v.GetBool("seed.default_schedules"),
		WebhookURL:             v.GetString("webhook.url"),
	}
	return cfg, nil
}

func bindEnv(v *viper.Viper, key, env string) {
	_ = v.BindEnv(key, env)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
