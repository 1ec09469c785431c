package sim

import (
	"math/rand"
	"sync"
	"time"
)

// SimulationConfig controls the realism of simulated radio behavior
type SimulationConfig struct {
	// Connection timing (in milliseconds)
	MinConnectionDelay    int     // Default: 30ms
	MaxConnectionDelay    int     // Default: 100ms
	ConnectionFailureRate float64 // Default: 0.016 (1.6% failure rate)

	// Discovery timing (in milliseconds)
	AdvertisingInterval int // Default: 100ms (Apple's recommended interval)
	MinDiscoveryDelay   int // Default: 100ms, GATT service discovery
	MaxDiscoveryDelay   int // Default: 500ms

	// Radio characteristics
	BaseRSSI     int // Default: -50 dBm (close range)
	RSSIVariance int // Default: 10 dBm

	// Deterministic mode for testing
	Deterministic bool
	Seed          int64
}

// DefaultSimulationConfig returns realistic BLE timing
func DefaultSimulationConfig() *SimulationConfig {
	return &SimulationConfig{
		MinConnectionDelay:    30,
		MaxConnectionDelay:    100,
		ConnectionFailureRate: 0.016,

		AdvertisingInterval: 100,
		MinDiscoveryDelay:   100,
		MaxDiscoveryDelay:   500,

		BaseRSSI:     -50,
		RSSIVariance: 10,
	}
}

// PerfectSimulationConfig returns a zero-delay, failure-free config for tests
func PerfectSimulationConfig() *SimulationConfig {
	cfg := DefaultSimulationConfig()
	cfg.MinConnectionDelay = 0
	cfg.MaxConnectionDelay = 0
	cfg.ConnectionFailureRate = 0
	cfg.AdvertisingInterval = 5
	cfg.MinDiscoveryDelay = 0
	cfg.MaxDiscoveryDelay = 0
	cfg.RSSIVariance = 0
	cfg.Deterministic = true
	return cfg
}

// simulator draws delays and failures from the config. rand.Rand is not
// safe for concurrent use, so every draw takes the lock.
type simulator struct {
	config *SimulationConfig
	mu     sync.Mutex
	rng    *rand.Rand
}

func newSimulator(config *SimulationConfig) *simulator {
	if config == nil {
		config = DefaultSimulationConfig()
	}
	seed := time.Now().UnixNano()
	if config.Deterministic {
		seed = config.Seed
	}
	return &simulator{
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (s *simulator) shouldConnectionSucceed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() >= s.config.ConnectionFailureRate
}

func (s *simulator) connectionDelay() time.Duration {
	return s.between(s.config.MinConnectionDelay, s.config.MaxConnectionDelay)
}

func (s *simulator) discoveryDelay() time.Duration {
	return s.between(s.config.MinDiscoveryDelay, s.config.MaxDiscoveryDelay)
}

func (s *simulator) advertisingInterval() time.Duration {
	if s.config.AdvertisingInterval <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(s.config.AdvertisingInterval) * time.Millisecond
}

func (s *simulator) rssi() int {
	if s.config.RSSIVariance <= 0 {
		return s.config.BaseRSSI
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.BaseRSSI - s.config.RSSIVariance + s.rng.Intn(2*s.config.RSSIVariance+1)
}

func (s *simulator) between(minMs, maxMs int) time.Duration {
	if maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(minMs+s.rng.Intn(maxMs-minMs)) * time.Millisecond
}
