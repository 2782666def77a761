package config

import (
	"time"

	pkgconfig "github.com/Lucca-Muniz/Chat/pkg/config"
	"github.com/Lucca-Muniz/Chat/pkg/queue"
)

type Config struct {
	Server ServerConfig
	Quote  QuoteConfig
	Queue  queue.Config
	Log    LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type QuoteConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Timeout time.Duration
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("quote.base_url", "https://stooq.com")
	v.SetDefault("quote.timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	q := queue.DefaultConfig()
	v.SetDefault("queue.driver", q.Driver)
	v.SetDefault("queue.command_queue", q.CommandQueue)
	v.SetDefault("queue.response_queue", q.ResponseQueue)
	v.SetDefault("queue.max_attempts", q.MaxAttempts)
	v.SetDefault("queue.dead_letter", q.DeadLetter)
	v.SetDefault("queue.amqp.url", q.AMQP.URL)
	v.SetDefault("queue.amqp.prefetch", q.AMQP.Prefetch)
	v.SetDefault("queue.amqp.quorum", false)
	v.SetDefault("queue.amqp.connection_name", "stock-bot-service")
	v.SetDefault("queue.redis.address", q.Redis.Address)
	v.SetDefault("queue.redis.group", "stock-bot-service")
	v.SetDefault("queue.redis.consumer", q.Redis.Consumer)
	v.SetDefault("queue.redis.block", q.Redis.Block.String())
	v.SetDefault("queue.kafka.brokers", q.Kafka.Brokers)
	v.SetDefault("queue.kafka.group_id", "stock-bot-service")
	v.SetDefault("queue.kafka.partitions", q.Kafka.Partitions)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("quote.base_url", "STOCK_API_URL")
	v.BindEnv("queue.driver", "QUEUE_DRIVER")
	v.BindEnv("queue.amqp.url", "RABBITMQ_URL")
	v.BindEnv("queue.kafka.brokers", "KAFKA_BROKERS")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Server.ShutdownTimeout = pkgconfig.Duration(v, "server.shutdown_timeout", 10*time.Second)
	cfg.Quote.Timeout = pkgconfig.Duration(v, "quote.timeout", 10*time.Second)
	cfg.Queue.Redis.Block = pkgconfig.Duration(v, "queue.redis.block", 2*time.Second)

	return &cfg, nil
}
