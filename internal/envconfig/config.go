// Package envconfig reads the GPURT_* environment variables.
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Device returns the requested compute device.
// Configurable via GPURT_DEVICE: auto, webgpu or cpu. Default: auto.
func Device() string {
	if s := strings.ToLower(Var("GPURT_DEVICE")); s != "" {
		return s
	}
	return "auto"
}

// LogLevel returns the log level.
// Configurable via GPURT_DEBUG: 0/false = INFO (default), 1/true = DEBUG,
// other integers n map to slog.Level(-4n).
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("GPURT_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// DispatchTimeout returns how long Run waits for a dispatch to complete.
// Configurable via GPURT_DISPATCH_TIMEOUT as a duration or whole seconds.
// 0 or negative waits forever. Default: 0.
func DispatchTimeout() time.Duration {
	return Duration("GPURT_DISPATCH_TIMEOUT", 0)()
}

var (
	// NumWorkers is the software device worker count.
	NumWorkers = Uint("GPURT_NUM_WORKERS", uint(runtime.NumCPU()))

	// MaxBatch is the number of pending WebGPU command buffers that forces a
	// submission. 0 submits only when a result is awaited.
	MaxBatch = Uint("GPURT_MAX_BATCH", 0)

	// CPUMemoryLimit caps the bytes the software device may allocate. 0 = unlimited.
	CPUMemoryLimit = Uint64("GPURT_CPU_MEMORY_LIMIT", 0)
)

// Var returns an environment variable stripped of surrounding quotes and spaces.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// Bool returns a getter for a boolean variable with a default. Unparsable
// non-empty values count as true.
func Bool(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Uint returns a getter for an unsigned variable with a default.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Uint64 returns a getter for a 64-bit unsigned variable with a default.
func Uint64(key string, defaultValue uint64) func() uint64 {
	return func() uint64 {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return n
			}
		}
		return defaultValue
	}
}

// Duration returns a getter for a duration variable. Plain integers are seconds.
func Duration(key string, defaultValue time.Duration) func() time.Duration {
	return func() time.Duration {
		if s := Var(key); s != "" {
			if d, err := time.ParseDuration(s); err == nil {
				return d
			} else if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return time.Duration(n) * time.Second
			}
			slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
		}
		return defaultValue
	}
}

// EnvVar describes one variable for display.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every variable with its current value and a description.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"GPURT_DEVICE":           {"GPURT_DEVICE", Device(), "Compute device: auto, webgpu or cpu (default auto)"},
		"GPURT_DEBUG":            {"GPURT_DEBUG", LogLevel(), "Show additional debug information (e.g. GPURT_DEBUG=1)"},
		"GPURT_DISPATCH_TIMEOUT": {"GPURT_DISPATCH_TIMEOUT", DispatchTimeout(), "How long to wait for a dispatch to complete (default 0, forever)"},
		"GPURT_NUM_WORKERS":      {"GPURT_NUM_WORKERS", NumWorkers(), "Software device worker goroutines (default: number of CPUs)"},
		"GPURT_MAX_BATCH":        {"GPURT_MAX_BATCH", MaxBatch(), "Pending WebGPU command buffers before a forced submit (default 0)"},
		"GPURT_CPU_MEMORY_LIMIT": {"GPURT_CPU_MEMORY_LIMIT", CPUMemoryLimit(), "Software device memory limit in bytes (default 0, unlimited)"},
	}
}

// Values returns every variable's current value as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
