package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr        string
	DatabaseURL     string
	LogLevel        string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	Granularity             time.Duration
	MinDuration             time.Duration
	LeadTime                time.Duration
	RescheduleLeadTimeCheck bool
	MaxAttempts             int
	CommitTimeout           time.Duration
}

func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VETCLINIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.addr", "0.0.0.0:8080")
	v.SetDefault("http.request_timeout", "10s")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "5m")
	v.SetDefault("scheduling.granularity", "5m")
	v.SetDefault("scheduling.min_duration", "15m")
	v.SetDefault("scheduling.lead_time", "0s")
	v.SetDefault("scheduling.reschedule_lead_time_check", false)
	v.SetDefault("scheduling.max_attempts", 3)
	v.SetDefault("scheduling.commit_timeout", "3s")
	v.SetDefault("shutdown.timeout", "10s")
	v.SetDefault("log.level", "info")

	_ = v.BindEnv("http.addr", "VETCLINIC_HTTP_ADDR", "HTTP_ADDR")
	_ = v.BindEnv("http.request_timeout", "VETCLINIC_HTTP_REQUEST_TIMEOUT")
	_ = v.BindEnv("database.url", "VETCLINIC_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("database.max_open_conns", "VETCLINIC_DATABASE_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.max_idle_conns", "VETCLINIC_DATABASE_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.conn_max_lifetime", "VETCLINIC_DATABASE_CONN_MAX_LIFETIME")
	_ = v.BindEnv("database.conn_max_idle_time", "VETCLINIC_DATABASE_CONN_MAX_IDLE_TIME")
	_ = v.BindEnv("scheduling.granularity", "VETCLINIC_SCHEDULING_GRANULARITY")
	_ = v.BindEnv("scheduling.min_duration", "VETCLINIC_SCHEDULING_MIN_DURATION")
	_ = v.BindEnv("scheduling.lead_time", "VETCLINIC_SCHEDULING_LEAD_TIME")
	_ = v.BindEnv("scheduling.reschedule_lead_time_check", "VETCLINIC_SCHEDULING_RESCHEDULE_LEAD_TIME_CHECK")
	_ = v.BindEnv("scheduling.max_attempts", "VETCLINIC_SCHEDULING_MAX_ATTEMPTS")
	_ = v.BindEnv("scheduling.commit_timeout", "VETCLINIC_SCHEDULING_COMMIT_TIMEOUT")
	_ = v.BindEnv("shutdown.timeout", "VETCLINIC_SHUTDOWN_TIMEOUT", "SHUTDOWN_TIMEOUT")
	_ = v.BindEnv("log.level", "VETCLINIC_LOG_LEVEL", "LOG_LEVEL")

	durations := map[string]time.Duration{}
	for _, key := range []string{
		"http.request_timeout",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		"scheduling.granularity",
		"scheduling.min_duration",
		"scheduling.lead_time",
		"scheduling.commit_timeout",
		"shutdown.timeout",
	} {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, err
		}
		durations[key] = d
	}

	return Config{
		HTTPAddr:        strings.TrimSpace(v.GetString("http.addr")),
		DatabaseURL:     v.GetString("database.url"),
		LogLevel:        v.GetString("log.level"),
		ShutdownTimeout: durations["shutdown.timeout"],
		RequestTimeout:  durations["http.request_timeout"],

		DBMaxOpenConns:    v.GetInt("database.max_open_conns"),
		DBMaxIdleConns:    v.GetInt("database.max_idle_conns"),
		DBConnMaxLifetime: durations["database.conn_max_lifetime"],
		DBConnMaxIdleTime: durations["database.conn_max_idle_time"],

		Granularity:             durations["scheduling.granularity"],
		MinDuration:             durations["scheduling.min_duration"],
		LeadTime:                durations["scheduling.lead_time"],
		RescheduleLeadTimeCheck: v.GetBool("scheduling.reschedule_lead_time_check"),
		MaxAttempts:             v.GetInt("scheduling.max_attempts"),
		CommitTimeout:           durations["scheduling.commit_timeout"],
	}, nil
}
