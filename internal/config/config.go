package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config defines the full server configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"EVSERVER_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN string `yaml:"dsn" env:"EVSERVER_POSTGRES_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"EVSERVER_REDIS_ADDR"`
		Password string `yaml:"password" env:"EVSERVER_REDIS_PASSWORD"`
	} `yaml:"redis"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret" env:"EVSERVER_JWT_SECRET"`
		// AnyoneCanStopSessions opens session stop to non-owners without the
		// admin role, for free-access sites.
		AnyoneCanStopSessions bool `yaml:"anyoneCanStopSessions" env:"EVSERVER_ANYONE_CAN_STOP"`
	} `yaml:"auth"`
	OCPP struct {
		HeartbeatIntervalSeconds int `yaml:"heartbeatIntervalSeconds" env:"EVSERVER_HEARTBEAT_INTERVAL"`
		PingIntervalSeconds      int `yaml:"pingIntervalSeconds" env:"EVSERVER_PING_INTERVAL"`
		WriteTimeoutSeconds      int `yaml:"writeTimeoutSeconds" env:"EVSERVER_WRITE_TIMEOUT"`
	} `yaml:"ocpp"`
	Tasks struct {
		Workers         int `yaml:"workers" env:"EVSERVER_TASK_WORKERS"`
		IntervalSeconds int `yaml:"intervalSeconds" env:"EVSERVER_TASK_INTERVAL"`
	} `yaml:"tasks"`
	Jobs struct {
		StaleTransactionMinutes int `yaml:"staleTransactionMinutes" env:"EVSERVER_STALE_TX_MINUTES"`
		BillingIntervalMinutes  int `yaml:"billingIntervalMinutes" env:"EVSERVER_BILLING_INTERVAL"`
		OCPIIntervalMinutes     int `yaml:"ocpiIntervalMinutes" env:"EVSERVER_OCPI_INTERVAL"`
	} `yaml:"jobs"`
	Services struct {
		BillingURL      string `yaml:"billingUrl" env:"BILLING_SERVICE_URL"`
		OCPIURL         string `yaml:"ocpiUrl" env:"OCPI_SERVICE_URL"`
		NotificationURL string `yaml:"notificationUrl" env:"NOTIFICATION_SERVICE_URL"`
	} `yaml:"services"`
	Pricing struct {
		PricePerKWh float64 `yaml:"pricePerKwh" env:"EVSERVER_PRICE_PER_KWH"`
		Currency    string  `yaml:"currency" env:"EVSERVER_CURRENCY"`
	} `yaml:"pricing"`
}

// Load reads the configuration and validates required fields.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8080"
	cfg.OCPP.HeartbeatIntervalSeconds = 300
	cfg.OCPP.PingIntervalSeconds = 30
	cfg.OCPP.WriteTimeoutSeconds = 15
	cfg.Tasks.Workers = 1
	cfg.Tasks.IntervalSeconds = 60
	cfg.Jobs.StaleTransactionMinutes = 120
	cfg.Jobs.BillingIntervalMinutes = 60
	cfg.Jobs.OCPIIntervalMinutes = 15
	cfg.Pricing.Currency = "EUR"

	if err := LoadInto(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database DSN is required")
	}

	return cfg, nil
}

// HTTPAddress returns the :port style listen address.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// HeartbeatInterval returns the interval advertised to stations on boot.
func (c *Config) HeartbeatInterval() time.Duration {
	return positiveSeconds(c.OCPP.HeartbeatIntervalSeconds, 300*time.Second)
}

// PingInterval returns the websocket keepalive interval.
func (c *Config) PingInterval() time.Duration {
	return positiveSeconds(c.OCPP.PingIntervalSeconds, 30*time.Second)
}

// WriteTimeout returns the websocket write deadline.
func (c *Config) WriteTimeout() time.Duration {
	return positiveSeconds(c.OCPP.WriteTimeoutSeconds, 15*time.Second)
}

// TaskInterval returns the async task poll interval.
func (c *Config) TaskInterval() time.Duration {
	return positiveSeconds(c.Tasks.IntervalSeconds, 60*time.Second)
}

// TaskWorkers returns the bounded task pool size.
func (c *Config) TaskWorkers() int {
	if c.Tasks.Workers <= 0 {
		return 1
	}
	return c.Tasks.Workers
}

// StaleTransactionAge returns the age after which an active transaction
// without samples is force-closed by the sweep job.
func (c *Config) StaleTransactionAge() time.Duration {
	return positiveMinutes(c.Jobs.StaleTransactionMinutes, 2*time.Hour)
}

// BillingInterval returns the billing cycle period.
func (c *Config) BillingInterval() time.Duration {
	return positiveMinutes(c.Jobs.BillingIntervalMinutes, time.Hour)
}

// OCPIInterval returns the OCPI sync period.
func (c *Config) OCPIInterval() time.Duration {
	return positiveMinutes(c.Jobs.OCPIIntervalMinutes, 15*time.Minute)
}

func positiveSeconds(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Second
}

func positiveMinutes(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Minute
}
