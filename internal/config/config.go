// Package config loads the recentmessages configuration tree (app, irc,
// web, db) from a TOML file with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig controls retention and join/part scheduling.
type AppConfig struct {
	VacuumChannelsEvery time.Duration `mapstructure:"vacuum_channels_every"`
	ChannelsExpireAfter time.Duration `mapstructure:"channels_expire_after"`
	VacuumMessagesEvery time.Duration `mapstructure:"vacuum_messages_every"`
	MessagesExpireAfter time.Duration `mapstructure:"messages_expire_after"`
	MaxBufferSize       int           `mapstructure:"max_buffer_size"`
}

// IRCConfig controls the ingestion pipeline and upstream connection
// pacing. Nick/Pass default to an anonymous "justinfan" identity, which
// Twitch IRC accepts for read-only listening with no bot account needed.
type IRCConfig struct {
	Nick                  string        `mapstructure:"nick"`
	Pass                  string        `mapstructure:"pass"`
	NewConnectionEvery    time.Duration `mapstructure:"new_connection_every"`
	ForwarderRunEvery     time.Duration `mapstructure:"forwarder_run_every"`
	ForwarderMaxChunkSize int           `mapstructure:"forwarder_max_chunk_size"`
}

// TwitchAPICredentials are the OAuth client credentials for the upstream
// identity provider.
type TwitchAPICredentials struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

// WebConfig controls the HTTP surface.
type WebConfig struct {
	ListenAddress         string                `mapstructure:"listen_address"`
	TwitchAPICredentials  TwitchAPICredentials  `mapstructure:"twitch_api_credentials"`
	SessionsExpireAfter   time.Duration         `mapstructure:"sessions_expire_after"`
	RecheckTwitchAuthAfter time.Duration        `mapstructure:"recheck_twitch_auth_after"`
	RequestTimeout        time.Duration         `mapstructure:"request_timeout"`
}

// PoolConfig controls a single database partition's connection pool.
type PoolConfig struct {
	MaxSize        int           `mapstructure:"max_size"`
	CreateTimeout  time.Duration `mapstructure:"create_timeout"`
	WaitTimeout    time.Duration `mapstructure:"wait_timeout"`
	RecycleTimeout time.Duration `mapstructure:"recycle_timeout"`
}

// DatabaseConfig describes how to reach one Postgres partition.
type DatabaseConfig struct {
	Name     string `mapstructure:"name"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DBName   string `mapstructure:"dbname"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	Pool     PoolConfig `mapstructure:"pool"`
}

// DSN renders a lib/pq connection string for this partition.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.DBName, d.User, d.Password, sslmode)
}

// DBConfig holds the main partition plus N shard partitions.
type DBConfig struct {
	MainDB  DatabaseConfig   `mapstructure:"main_db"`
	ShardDB []DatabaseConfig `mapstructure:"shard_db"`
}

// RedisConfig controls the optional read-through message cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	Enabled  bool   `mapstructure:"enabled"`
}

// KafkaConfig controls the optional event publisher.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	Enabled bool     `mapstructure:"enabled"`
}

// Config is the full recentmessages configuration tree.
type Config struct {
	App   AppConfig   `mapstructure:"app"`
	IRC   IRCConfig   `mapstructure:"irc"`
	Web   WebConfig   `mapstructure:"web"`
	DB    DBConfig    `mapstructure:"db"`
	Redis RedisConfig `mapstructure:"redis"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.vacuum_channels_every", 30*time.Minute)
	v.SetDefault("app.channels_expire_after", 24*time.Hour)
	v.SetDefault("app.vacuum_messages_every", 30*time.Minute)
	v.SetDefault("app.messages_expire_after", 24*time.Hour)
	v.SetDefault("app.max_buffer_size", 500)

	v.SetDefault("irc.nick", "justinfan12345")
	v.SetDefault("irc.pass", "")
	v.SetDefault("irc.new_connection_every", 550*time.Millisecond)
	v.SetDefault("irc.forwarder_run_every", time.Second)
	v.SetDefault("irc.forwarder_max_chunk_size", 1000)

	v.SetDefault("web.listen_address", "0.0.0.0:8080")
	v.SetDefault("web.sessions_expire_after", 7*24*time.Hour)
	v.SetDefault("web.recheck_twitch_auth_after", time.Hour)
	v.SetDefault("web.request_timeout", 10*time.Second)

	v.SetDefault("db.main_db.pool.max_size", 10)
	v.SetDefault("db.main_db.pool.create_timeout", 5*time.Second)
	v.SetDefault("db.main_db.pool.wait_timeout", 5*time.Second)
	v.SetDefault("db.main_db.pool.recycle_timeout", 5*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "recentmessages-events")
}

// Load reads configuration from configPath (TOML) and overlays any
// RM_-prefixed environment variables (e.g. RM_APP_MAX_BUFFER_SIZE).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	setDefaults(v)

	v.SetEnvPrefix("RM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
