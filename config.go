package subtle

import (
	"os"
	"strconv"
)

// Config tunes the VM's fixed-size stacks and GC thresholds. Its
// constructor follows the teacher's NewValuesStoreOpts pattern
// (valuesstore.go in the reference tree): read SUBTLEVM_* environment
// variables, fall back to the spec's defaults.
type Config struct {
	// FramesMax bounds the call-frame stack (spec.md §4.5 default: 64).
	FramesMax int
	// StackSlotsPerFrame bounds the value stack, together with
	// FramesMax (spec.md §4.5 default: 256 * FramesMax).
	StackSlotsPerFrame int
	// InitialGCBytes is the bytes_allocated threshold that triggers the
	// first collection (spec.md §4.7 default: ~1MiB).
	InitialGCBytes int64
	// GCGrowthFactor multiplies bytes_allocated after each collection to
	// produce the next threshold (spec.md §4.7 default: 2.0).
	GCGrowthFactor float64
	// MaxRoots bounds the push_root/pop_root scratch register (spec.md
	// §6 default: 8; may be raised).
	MaxRoots int
	// MaxPrototypeChain bounds get_slot's prototype-chain walk before
	// treating the lookup as a miss (spec.md §4.4 default: >= 64).
	MaxPrototypeChain int
}

// Opt configures a Config in place.
type Opt func(*Config)

func OptFramesMax(n int) Opt             { return func(c *Config) { c.FramesMax = n } }
func OptStackSlotsPerFrame(n int) Opt     { return func(c *Config) { c.StackSlotsPerFrame = n } }
func OptInitialGCBytes(n int64) Opt       { return func(c *Config) { c.InitialGCBytes = n } }
func OptGCGrowthFactor(f float64) Opt     { return func(c *Config) { c.GCGrowthFactor = f } }
func OptMaxRoots(n int) Opt               { return func(c *Config) { c.MaxRoots = n } }
func OptMaxPrototypeChain(n int) Opt      { return func(c *Config) { c.MaxPrototypeChain = n } }

// NewConfig builds a Config from SUBTLEVM_<envPrefix><NAME> environment
// variables, falling back to the spec's defaults for anything unset.
// envPrefix is usually "" in production; it exists so tests can run
// isolated configurations side by side.
func NewConfig(envPrefix string, opts ...Opt) *Config {
	c := &Config{}
	if v := envInt(envPrefix, "FRAMES_MAX"); v > 0 {
		c.FramesMax = v
	}
	if c.FramesMax <= 0 {
		c.FramesMax = 64
	}
	if v := envInt(envPrefix, "STACK_SLOTS_PER_FRAME"); v > 0 {
		c.StackSlotsPerFrame = v
	}
	if c.StackSlotsPerFrame <= 0 {
		c.StackSlotsPerFrame = 256
	}
	if v := envInt(envPrefix, "INITIAL_GC_BYTES"); v > 0 {
		c.InitialGCBytes = int64(v)
	}
	if c.InitialGCBytes <= 0 {
		c.InitialGCBytes = 1 << 20
	}
	if v := envFloat(envPrefix, "GC_GROWTH_FACTOR"); v > 0 {
		c.GCGrowthFactor = v
	}
	if c.GCGrowthFactor <= 0 {
		c.GCGrowthFactor = 2.0
	}
	if v := envInt(envPrefix, "MAX_ROOTS"); v > 0 {
		c.MaxRoots = v
	}
	if c.MaxRoots <= 0 {
		c.MaxRoots = 8
	}
	if v := envInt(envPrefix, "MAX_PROTOTYPE_CHAIN"); v > 0 {
		c.MaxPrototypeChain = v
	}
	if c.MaxPrototypeChain <= 0 {
		c.MaxPrototypeChain = 64
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func envInt(prefix, name string) int {
	if v := os.Getenv("SUBTLEVM_" + prefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

func envFloat(prefix, name string) float64 {
	if v := os.Getenv("SUBTLEVM_" + prefix + name); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return 0
}

// stackMax is the total value stack size: StackSlotsPerFrame * FramesMax.
func (c *Config) stackMax() int { return c.StackSlotsPerFrame * c.FramesMax }
