package config

import (
	"time"

	pkgconfig "github.com/Lucca-Muniz/Chat/pkg/config"
	"github.com/Lucca-Muniz/Chat/pkg/database"
	"github.com/Lucca-Muniz/Chat/pkg/jwt"
	"github.com/Lucca-Muniz/Chat/pkg/pubsub"
	"github.com/Lucca-Muniz/Chat/pkg/queue"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Chat      ChatConfig
	Database  database.Config
	Redis     RedisConfig
	Cache     CacheConfig
	Bus       pubsub.Config
	Queue     queue.Config
	JWT       JWTConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	// RateLimit is inbound frames per second per connection; 0 disables it.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type ChatConfig struct {
	DefaultRoomID  int `mapstructure:"default_room_id"`
	RecentLimit    int `mapstructure:"recent_limit"`
	MaxRecentLimit int `mapstructure:"max_recent_limit"`
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type CacheConfig struct {
	Enabled bool
	Prefix  string
	TTL     time.Duration
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
	// Required rejects connections and history requests without a valid token.
	Required bool
}

// Manager returns the token config understood by pkg/jwt.
func (c JWTConfig) Manager() jwt.Config {
	return jwt.Config{
		Secret:   c.Secret,
		Issuer:   c.Issuer,
		Audience: c.Audience,
	}
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.rate_limit", 10)
	v.SetDefault("websocket.rate_burst", 20)
	v.SetDefault("chat.default_room_id", 1)
	v.SetDefault("chat.recent_limit", 50)
	v.SetDefault("chat.max_recent_limit", 100)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "financial_chat")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/chat.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.prefix", "chat:recent")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("bus.driver", "local")
	v.SetDefault("jwt.issuer", "FinancialChatApp")
	v.SetDefault("jwt.audience", "FinancialChatUsers")
	v.SetDefault("jwt.required", false)
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
	v.SetDefault("queue.amqp.connection_name", "chat-service")
	v.SetDefault("queue.redis.address", q.Redis.Address)
	v.SetDefault("queue.redis.group", "chat-service")
	v.SetDefault("queue.redis.consumer", q.Redis.Consumer)
	v.SetDefault("queue.redis.block", q.Redis.Block.String())
	v.SetDefault("queue.kafka.brokers", q.Kafka.Brokers)
	v.SetDefault("queue.kafka.group_id", "chat-service")
	v.SetDefault("queue.kafka.partitions", q.Kafka.Partitions)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("bus.driver", "BUS_DRIVER")
	v.BindEnv("queue.driver", "QUEUE_DRIVER")
	v.BindEnv("queue.amqp.url", "RABBITMQ_URL")
	v.BindEnv("queue.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("jwt.secret", "JWT_SECRET")
	v.BindEnv("jwt.required", "JWT_REQUIRED")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Server.ShutdownTimeout = pkgconfig.Duration(v, "server.shutdown_timeout", 30*time.Second)
	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.Cache.TTL = pkgconfig.Duration(v, "cache.ttl", 5*time.Minute)
	cfg.Queue.Redis.Block = pkgconfig.Duration(v, "queue.redis.block", 2*time.Second)

	// The bus shares the redis connection settings.
	cfg.Bus.Redis.Address = cfg.Redis.Address
	cfg.Bus.Redis.Password = cfg.Redis.Password
	cfg.Bus.Redis.DB = cfg.Redis.DB

	if cfg.Chat.DefaultRoomID == 0 {
		cfg.Chat.DefaultRoomID = 1
	}

	return &cfg, nil
}
