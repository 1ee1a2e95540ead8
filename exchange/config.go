package exchange

import (
	"github.com/FerroO2000/staffetta/internal/config"
)

const defaultCapacity int64 = 1024

// Config is the configuration of an exchange ring.
type Config struct {
	// Capacity is the number of slots in the ring.
	// It is rounded up to the next power of two.
	Capacity int64

	// Producer selects the claim strategy.
	Producer ProducerKind

	// Wait selects the wait strategy handed to barriers.
	Wait WaitKind

	// CustomWait overrides Wait with a user provided strategy.
	CustomWait WaitStrategy

	// AllowUngated permits claiming sequences while no gating sequence
	// is registered. An ungated ring never reuses a published slot, so
	// claims fail or block once capacity events are outstanding.
	AllowUngated bool
}

// DefaultConfig returns the default configuration of an exchange ring.
func DefaultConfig() *Config {
	return &Config{
		Capacity: defaultCapacity,
		Producer: KindMultiProducer,
		Wait:     WaitKindBlocking,
	}
}

// Validate checks the configuration.
func (c *Config) Validate(ac *config.AnomalyCollector) {
	config.CheckNotZero(ac, "Capacity", &c.Capacity, defaultCapacity)
	config.CheckPowerOfTwo(ac, "Capacity", &c.Capacity)
}
