package runtime

import (
	"log/slog"
	"time"

	"github.com/born-ml/gpurt/internal/envconfig"
)

// DeviceAuto selects the first device that opens, in preference order.
const DeviceAuto = "auto"

// devicePreference is the order DeviceAuto tries devices in.
var devicePreference = []string{"webgpu", "cpu"}

type config struct {
	device          string
	logger          *slog.Logger
	dispatchTimeout time.Duration
	workers         int
	maxBatch        int
	memoryLimit     uint64
}

func defaultConfig() config {
	return config{
		device:          envconfig.Device(),
		logger:          slog.Default(),
		dispatchTimeout: envconfig.DispatchTimeout(),
		workers:         int(envconfig.NumWorkers()), //nolint:gosec // G115: worker counts are small
		maxBatch:        int(envconfig.MaxBatch()),   //nolint:gosec // G115: batch sizes are small
		memoryLimit:     envconfig.CPUMemoryLimit(),
	}
}

// Option configures a Context.
type Option func(*config)

// WithDevice selects a device by registry name, or DeviceAuto.
func WithDevice(name string) Option {
	return func(c *config) {
		c.device = name
	}
}

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDispatchTimeout bounds how long Run waits. Zero waits forever.
func WithDispatchTimeout(d time.Duration) Option {
	return func(c *config) {
		c.dispatchTimeout = d
	}
}

// WithWorkers sets the software device worker count.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithMaxBatch sets how many WebGPU command buffers may be pending before a
// submission is forced.
func WithMaxBatch(n int) Option {
	return func(c *config) {
		c.maxBatch = n
	}
}

// WithMemoryLimit caps the software device's allocations. Zero is unlimited.
func WithMemoryLimit(bytes uint64) Option {
	return func(c *config) {
		c.memoryLimit = bytes
	}
}
