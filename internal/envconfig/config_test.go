package envconfig

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDevice(t *testing.T) {
	cases := map[string]string{
		"":         "auto",
		"CPU":      "cpu",
		" webgpu ": "webgpu",
		"'cpu'":    "cpu",
	}
	for value, expect := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("GPURT_DEVICE", value)
			if actual := Device(); actual != expect {
				t.Errorf("%s: expected %s, got %s", value, expect, actual)
			}
		})
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"0":     slog.LevelInfo,
		"true":  slog.LevelDebug,
		"1":     slog.LevelDebug,
		"2":     slog.Level(-8),
	}
	for value, expect := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("GPURT_DEBUG", value)
			if actual := LogLevel(); actual != expect {
				t.Errorf("%s: expected %s, got %s", value, expect, actual)
			}
		})
	}
}

func TestDispatchTimeout(t *testing.T) {
	cases := map[string]time.Duration{
		"":      0,
		"1s":    time.Second,
		"250ms": 250 * time.Millisecond,
		"3":     3 * time.Second,
		"bogus": 0,
	}
	for value, expect := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("GPURT_DISPATCH_TIMEOUT", value)
			if actual := DispatchTimeout(); actual != expect {
				t.Errorf("%s: expected %s, got %s", value, expect, actual)
			}
		})
	}
}

func TestUint(t *testing.T) {
	cases := map[string]uint{
		"0":    0,
		"1":    1,
		"1024": 1024,
		"-1":   11,
		"x":    11,
	}
	for value, expect := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("GPURT_UINT", value)
			if actual := Uint("GPURT_UINT", 11)(); actual != expect {
				t.Errorf("%s: expected %d, got %d", value, expect, actual)
			}
		})
	}
}

func TestBool(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		"true":  true,
		"false": false,
		"1":     true,
		"0":     false,
		"yes":   true, // unparsable but set
	}
	for value, expect := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("GPURT_BOOL", value)
			if actual := Bool("GPURT_BOOL")(false); actual != expect {
				t.Errorf("%s: expected %t, got %t", value, expect, actual)
			}
		})
	}
}

func TestValues(t *testing.T) {
	t.Setenv("GPURT_DEVICE", "cpu")
	t.Setenv("GPURT_DEBUG", "1")
	t.Setenv("GPURT_DISPATCH_TIMEOUT", "5s")
	t.Setenv("GPURT_NUM_WORKERS", "3")
	t.Setenv("GPURT_MAX_BATCH", "16")
	t.Setenv("GPURT_CPU_MEMORY_LIMIT", "4096")

	expect := map[string]string{
		"GPURT_DEVICE":           "cpu",
		"GPURT_DEBUG":            "DEBUG",
		"GPURT_DISPATCH_TIMEOUT": "5s",
		"GPURT_NUM_WORKERS":      "3",
		"GPURT_MAX_BATCH":        "16",
		"GPURT_CPU_MEMORY_LIMIT": "4096",
	}
	if diff := cmp.Diff(expect, Values()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
