package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"stakeScope/internal/clock"
)

const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// Config holds settings shared by every stakepool command, loaded from flags,
// env, or config file.
type Config struct {
	Store         string
	StateFile     string
	PGDSN         string
	Journal       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string
	RedisStream   string
	EpochLength   time.Duration
	LogLevel      string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return Config{}, err
	}
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store", StoreFile)
	v.SetDefault("state-file", "./data/state.json")
	v.SetDefault("journal", "./data/events.jsonl")
	v.SetDefault("redis-channel", "stakepool:events")
	v.SetDefault("redis-db", 0)
	v.SetDefault("epoch-length", clock.DefaultEpochLength)
	v.SetDefault("log-level", "info")

	v.SetDefault("schedule", "*/30 * * * * *")
	v.SetDefault("metrics-addr", ":9102")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
}

func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("STAKEPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Store:         strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		StateFile:     v.GetString("state-file"),
		PGDSN:         v.GetString("pg-dsn"),
		Journal:       v.GetString("journal"),
		RedisAddr:     v.GetString("redis-addr"),
		RedisPassword: v.GetString("redis-password"),
		RedisDB:       v.GetInt("redis-db"),
		RedisChannel:  v.GetString("redis-channel"),
		RedisStream:   v.GetString("redis-stream"),
		EpochLength:   v.GetDuration("epoch-length"),
		LogLevel:      v.GetString("log-level"),
	}

	switch cfg.Store {
	case StoreFile:
		if cfg.StateFile == "" {
			return Config{}, fmt.Errorf("state-file is required for the file store")
		}
	case StorePostgres:
		if cfg.PGDSN == "" {
			return Config{}, fmt.Errorf("pg-dsn is required for the postgres store")
		}
	default:
		return Config{}, fmt.Errorf("unknown store %q", cfg.Store)
	}
	if cfg.EpochLength < time.Second {
		return Config{}, fmt.Errorf("epoch-length must be at least 1s")
	}
	return cfg, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
