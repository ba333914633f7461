package safety

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Capsule restricts what a single investigation may do: which tools it
// may call and how much it may spend. A zero-value field means
// unrestricted.
type Capsule struct {
	AllowedTools []string
	MaxBudget    float64
}

func (c *Capsule) allows(tool string) bool {
	if len(c.AllowedTools) == 0 {
		return true
	}
	for _, t := range c.AllowedTools {
		if t == tool {
			return true
		}
	}
	return false
}

// GateVerdict is the policy gate's answer for one proposed call.
type GateVerdict struct {
	Allowed     bool
	Reason      string
	RateLimited bool
	RetryAfter  time.Duration
}

// GateConfig tunes the policy gate.
type GateConfig struct {
	Capsule          *Capsule
	RatePerMinute    int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// breakerState tracks consecutive failures per tool.
type breakerState struct {
	failures  int
	openUntil time.Time
}

// Gate enforces intent restrictions, rate limits, spend budget and a
// per-tool circuit breaker.
type Gate struct {
	cfg     GateConfig
	limiter *rate.Limiter

	mu       sync.Mutex
	spent    float64
	breakers map[string]*breakerState
}

// NewGate creates a policy gate from config. A zero RatePerMinute
// disables rate limiting.
func NewGate(cfg GateConfig) *Gate {
	if cfg.BreakerThreshold < 1 {
		cfg.BreakerThreshold = 3
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	g := &Gate{cfg: cfg, breakers: make(map[string]*breakerState)}
	if cfg.RatePerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), cfg.RatePerMinute)
	}
	return g
}

// Check evaluates a proposed tool call. Evaluation order: capsule
// tool restriction, budget, circuit breaker, rate limit.
func (g *Gate) Check(tool string, cost float64) GateVerdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cfg.Capsule != nil {
		if !g.cfg.Capsule.allows(tool) {
			return GateVerdict{Reason: fmt.Sprintf("tool %s not in capsule allowlist", tool)}
		}
		if g.cfg.Capsule.MaxBudget > 0 && g.spent+cost > g.cfg.Capsule.MaxBudget {
			return GateVerdict{Reason: fmt.Sprintf("budget exceeded: spent %.2f of %.2f", g.spent, g.cfg.Capsule.MaxBudget)}
		}
	}

	if b, ok := g.breakers[tool]; ok && b.failures >= g.cfg.BreakerThreshold {
		if time.Now().Before(b.openUntil) {
			return GateVerdict{
				Reason:     fmt.Sprintf("circuit breaker open for %s after %d consecutive failures", tool, b.failures),
				RetryAfter: time.Until(b.openUntil),
			}
		}
		// Cooldown elapsed, half-open: let one call through.
		b.failures = g.cfg.BreakerThreshold - 1
	}

	if g.limiter != nil && !g.limiter.Allow() {
		res := g.limiter.Reserve()
		delay := res.Delay()
		res.Cancel()
		return GateVerdict{
			Reason:      "rate limit exceeded",
			RateLimited: true,
			RetryAfter:  delay,
		}
	}

	return GateVerdict{Allowed: true}
}

// ReportSuccess resets the breaker for tool.
func (g *Gate) ReportSuccess(tool string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.breakers, tool)
}

// ReportFailure records one failure; reaching the threshold opens the
// breaker for the configured cooldown.
func (g *Gate) ReportFailure(tool string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[tool]
	if !ok {
		b = &breakerState{}
		g.breakers[tool] = b
	}
	b.failures++
	if b.failures >= g.cfg.BreakerThreshold {
		b.openUntil = time.Now().Add(g.cfg.BreakerCooldown)
	}
}

// RecordSpend adds observed cost so the budget converges on actuals.
func (g *Gate) RecordSpend(cost float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.spent += cost
}

// Spent returns the accumulated observed cost.
func (g *Gate) Spent() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.spent
}
