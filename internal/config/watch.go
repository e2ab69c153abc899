package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
)

// WatchConfig holds configuration for the watch daemon.
type WatchConfig struct {
	Config
	RPCURL       string
	Schedule     string
	Pools        []common.Hash
	RewardToken  common.Address
	MetricsAddr  string
	MaxRetries   int
	RetryBackoff time.Duration
}

// LoadWatch merges config file, environment variables, and flags into
// WatchConfig.
func LoadWatch(cfgFile string, flags *pflag.FlagSet) (WatchConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return WatchConfig{}, err
	}
	base, err := fromViper(v)
	if err != nil {
		return WatchConfig{}, err
	}

	pools, err := ParseHashes(getStringSlice(v, "pools"))
	if err != nil {
		return WatchConfig{}, err
	}
	if len(pools) == 0 {
		return WatchConfig{}, fmt.Errorf("at least one pool is required")
	}

	cfg := WatchConfig{
		Config:       base,
		RPCURL:       v.GetString("rpc"),
		Schedule:     v.GetString("schedule"),
		Pools:        pools,
		MetricsAddr:  v.GetString("metrics-addr"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
	}

	if token := v.GetString("reward-token"); token != "" {
		if cfg.RewardToken, err = ParseAddress(token); err != nil {
			return WatchConfig{}, err
		}
		if cfg.RPCURL == "" {
			return WatchConfig{}, fmt.Errorf("rpc is required to mirror reward-token")
		}
	}
	return cfg, nil
}
