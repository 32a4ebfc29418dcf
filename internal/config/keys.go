package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	env   string
	typ   keyType
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{
		env: "WARBLE_SERVER_PORT", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
	},
	{
		env: "WARBLE_PLATFORM_BASE_URL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Platform.BaseURL = v.(string) },
	},
	{
		env: "WARBLE_BEARER_TOKEN", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Platform.BearerToken = v.(string) },
	},
	{
		env: "WARBLE_MAX_REPLIES", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Budget.MaxReplies = v.(int) },
	},
	{
		env: "WARBLE_MAX_ORIGINALS", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Budget.MaxOriginals = v.(int) },
	},
	{
		env: "WARBLE_MAX_LIKES", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Budget.MaxLikes = v.(int) },
	},
	{
		env: "WARBLE_MAX_RETWEETS", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Budget.MaxRetweets = v.(int) },
	},
	{
		env: "WARBLE_MAX_FOLLOWS", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Budget.MaxFollows = v.(int) },
	},
	{
		env: "WARBLE_MAX_UNFOLLOWS", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Budget.MaxUnfollows = v.(int) },
	},
	{
		env: "WARBLE_MAX_DELETES", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Budget.MaxDeletes = v.(int) },
	},
	{
		env: "WARBLE_MAX_ACTIVE_WORKFLOWS", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Workflows.MaxActive = v.(int) },
	},
	{
		env: "WARBLE_PROTECTED_ACCOUNTS", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Workflows.ProtectedAccounts = v.(string) },
	},
	{
		env: "WARBLE_DATA_DIR", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
	},
	{
		env: "WARBLE_LOG_LEVEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
	},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
