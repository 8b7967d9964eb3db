package config

import "time"

type PostgresConfig struct {
	DSN             string        `env:"PG_DSN"`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS"    default:"20"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS"    default:"5"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME" default:"5m"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME"  default:"30m"`
}

type AMQPConfig struct {
	URL           string `env:"AMQP_URL"`
	Exchange      string `env:"AMQP_EXCHANGE"       default:"transfers"`
	Prefetch      int    `env:"AMQP_PREFETCH"       default:"16"`
	MaxDeliveries int    `env:"AMQP_MAX_DELIVERIES" default:"10"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD" default:""`
	DB       int    `env:"REDIS_DB"       default:"0"`
	AlertKey string `env:"ALERT_LIST_KEY" default:"transfersaga:alerts"`
}

type ReaperConfig struct {
	Interval   time.Duration `env:"REAPER_INTERVAL"    default:"30s"`
	StuckAfter time.Duration `env:"REAPER_STUCK_AFTER" default:"2m"`
	MaxReemits int           `env:"REAPER_MAX_REEMITS" default:"5"`
	BatchSize  int           `env:"REAPER_BATCH_SIZE"  default:"100"`
}
