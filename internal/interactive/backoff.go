package interactive

import (
	"math"
	"math/rand"
	"time"
)

// NextReconnectDelay returns the wait before retry N (1-based).
func NextReconnectDelay(base time.Duration, cfg BackoffConfig, retry int, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	if retry <= 1 {
		return base
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(base) * math.Pow(cfg.Multiplier, float64(retry-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}
