package ratelimit

import (
	"os"
	"strconv"
	"time"

	"github.com/jonathan/apply-engine/internal/platform"
)

// Limits describes the throughput ceiling for one platform.
type Limits struct {
	PerMinute int // sustained request rate (token bucket refill)
	PerHour   int // hourly ceiling, resets on hour rollover
	PerDay    int // daily ceiling, resets on day rollover
	Burst     int // bucket capacity
}

// conservativeLimits are the defaults. Fragile platforms get lower rates.
var conservativeLimits = map[platform.Platform]Limits{
	platform.PlatformGreenhouse:      {PerMinute: 30, PerHour: 500, PerDay: 1500, Burst: 5},
	platform.PlatformLever:           {PerMinute: 20, PerHour: 300, PerDay: 900, Burst: 3},
	platform.PlatformWorkday:         {PerMinute: 10, PerHour: 100, PerDay: 300, Burst: 2},
	platform.PlatformLinkedIn:        {PerMinute: 15, PerHour: 200, PerDay: 500, Burst: 3},
	platform.PlatformIndeed:          {PerMinute: 20, PerHour: 300, PerDay: 900, Burst: 4},
	platform.PlatformAshby:           {PerMinute: 25, PerHour: 400, PerDay: 1200, Burst: 4},
	platform.PlatformBreezy:          {PerMinute: 25, PerHour: 400, PerDay: 1200, Burst: 4},
	platform.PlatformSmartRecruiters: {PerMinute: 20, PerHour: 300, PerDay: 900, Burst: 3},
}

// defaultConservative applies to platforms without a dedicated entry.
var defaultConservative = Limits{PerMinute: 15, PerHour: 200, PerDay: 600, Burst: 3}

// aggressiveLimits roughly double throughput. Operator-selectable; higher ban
// risk. LinkedIn stays conservative even here.
var aggressiveLimits = map[platform.Platform]Limits{
	platform.PlatformGreenhouse:      {PerMinute: 60, PerHour: 1000, PerDay: 3000, Burst: 10},
	platform.PlatformLever:           {PerMinute: 40, PerHour: 600, PerDay: 1800, Burst: 6},
	platform.PlatformWorkday:         {PerMinute: 20, PerHour: 200, PerDay: 600, Burst: 4},
	platform.PlatformLinkedIn:        {PerMinute: 20, PerHour: 200, PerDay: 500, Burst: 3},
	platform.PlatformIndeed:          {PerMinute: 40, PerHour: 600, PerDay: 1800, Burst: 6},
	platform.PlatformAshby:           {PerMinute: 50, PerHour: 800, PerDay: 2400, Burst: 6},
	platform.PlatformBreezy:          {PerMinute: 50, PerHour: 800, PerDay: 2400, Burst: 6},
	platform.PlatformSmartRecruiters: {PerMinute: 40, PerHour: 600, PerDay: 1800, Burst: 5},
}

var defaultAggressive = Limits{PerMinute: 30, PerHour: 400, PerDay: 1200, Burst: 5}

// LimitsFor returns the limits for a platform in the selected mode.
func LimitsFor(p platform.Platform, aggressive bool) Limits {
	if aggressive {
		if l, ok := aggressiveLimits[p]; ok {
			return l
		}
		return defaultAggressive
	}
	if l, ok := conservativeLimits[p]; ok {
		return l
	}
	return defaultConservative
}

// Config holds the limiter-wide settings.
type Config struct {
	Aggressive       bool          // use the aggressive limit tables
	GlobalDailyCap   int           // total requests per day across all platforms (0 = unlimited)
	MaxWait          time.Duration // longest Acquire will wait for a token
	FailureThreshold int           // breaker threshold
	BreakerCooldown  time.Duration // breaker open duration
}

// DefaultConfig returns limiter settings, honoring the AGGRESSIVE_RATE_LIMITS
// and GLOBAL_DAILY_CAP environment variables.
func DefaultConfig() Config {
	return Config{
		Aggressive:       getEnvBool("AGGRESSIVE_RATE_LIMITS", false),
		GlobalDailyCap:   getEnvInt("GLOBAL_DAILY_CAP", 1000),
		MaxWait:          30 * time.Second,
		FailureThreshold: defaultFailureThreshold,
		BreakerCooldown:  defaultBreakerCooldown,
	}
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
