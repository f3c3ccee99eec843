package config

import (
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// IntFromEnv returns def when key is unset or not an integer.
func IntFromEnv(key string, def int) int {
	return intFromEnv(key, def)
}

// BoolFromEnv accepts 1/true/yes/y and 0/false/no/n; anything else returns def.
func BoolFromEnv(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	default:
		return def
	}
}

func DecimalFromEnv(key string, def decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return def
	}
	return d
}

func StringFromEnv(key string, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// ParallelCloseTasks lets the close engine run consecutive parallelizable tasks concurrently.
//
// Set via env:
// - CLOSE_PARALLEL_TASKS=true
func ParallelCloseTasks() bool {
	return BoolFromEnv("CLOSE_PARALLEL_TASKS", false)
}

// StrictPostingGate rejects journal entries dated outside any known fiscal period.
//
// Set via env:
// - STRICT_POSTING_GATE=true
func StrictPostingGate() bool {
	return BoolFromEnv("STRICT_POSTING_GATE", false)
}
