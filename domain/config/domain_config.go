package config

import (
	"fmt"
	"time"
)

// DomainConfig holds all configurable pedagogy rules and engine constraints
type DomainConfig struct {
	// Graph constraints
	MaxConcepts          int
	MaxEdges             int
	MaxPrereqsPerConcept int

	// Mastery model
	MasteryThreshold   float64       // decayed mastery at or above this counts as mastered
	DefaultDecayRate   float64       // per-hour exponential decay rate for new records
	ExpectedResponse   time.Duration // baseline response time for the efficiency factor
	MinAttemptGain     float64       // learning-rate floor for an attempt update
	MaxAttemptGain     float64       // learning-rate ceiling for an attempt update

	// Planning
	CandidateCount    int     // K candidate linear extensions per plan
	GateThreshold     float64 // max E_mastery over direct prerequisites before blocking
	EnergyThreshold   float64 // validation pass/fail cutoff on total energy
	GreedyCandidate   bool    // include the embedding-nearest-neighbor ordering
	PlannerSeed       int64   // base seed mixed into the per-plan candidate sampling seed

	// Weight adaptation
	LearningRate      float64
	MaxWeight         float64 // per-term clip ceiling
	MinPairOverlap    float64 // Jaccard overlap required to pair trajectories
	AdaptSchedule     string  // cron expression for the periodic batch job

	// Persistence
	SnapshotInterval time.Duration
	LogFlushInterval time.Duration
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		// Graph constraints
		MaxConcepts:          10000,
		MaxEdges:             50000,
		MaxPrereqsPerConcept: 50,

		// Mastery model
		MasteryThreshold: 0.7,
		DefaultDecayRate: 0.002,
		ExpectedResponse: 60 * time.Second,
		MinAttemptGain:   0.15,
		MaxAttemptGain:   0.45,

		// Planning
		CandidateCount:  8,
		GateThreshold:   0.35,
		EnergyThreshold: 1.5,
		GreedyCandidate: true,
		PlannerSeed:     0,

		// Weight adaptation
		LearningRate:   0.05,
		MaxWeight:      10.0,
		MinPairOverlap: 0.5,
		AdaptSchedule:  "@every 15m",

		// Persistence
		SnapshotInterval: 5 * time.Minute,
		LogFlushInterval: time.Second,
	}
}

// DevelopmentDomainConfig returns development-specific configuration
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// Deterministic planning and fast feedback loops for local work
	config.PlannerSeed = 1
	config.CandidateCount = 4
	config.SnapshotInterval = 30 * time.Second
	config.AdaptSchedule = "@every 1m"

	return config
}

// LoadDomainConfig loads domain configuration based on environment
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}

// Validate checks if the configuration is valid
func (c *DomainConfig) Validate() error {
	if c.MasteryThreshold <= 0 || c.MasteryThreshold > 1 {
		return fmt.Errorf("mastery threshold must be in (0,1], got %f", c.MasteryThreshold)
	}
	if c.CandidateCount < 1 {
		return fmt.Errorf("candidate count must be at least 1, got %d", c.CandidateCount)
	}
	if c.DefaultDecayRate < 0 {
		return fmt.Errorf("decay rate must be non-negative, got %f", c.DefaultDecayRate)
	}
	if c.MinAttemptGain <= 0 || c.MaxAttemptGain < c.MinAttemptGain {
		return fmt.Errorf("attempt gain bounds invalid: [%f, %f]", c.MinAttemptGain, c.MaxAttemptGain)
	}
	if c.MaxWeight <= 0 {
		return fmt.Errorf("max weight must be positive, got %f", c.MaxWeight)
	}
	return nil
}
