package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalfix/kalfix/server/internal/config"
	"github.com/kalfix/kalfix/server/internal/metrics"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Shift      string     `json:"shift"`
	Condition  string     `json:"condition"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

type rule struct {
	config.AlertRule
	cond condition
}

// Source returns the metrics of the active shift. The boolean is false
// when no shift is active.
type Source func(ctx context.Context) (metrics.ShiftMetrics, bool, error)

// Engine evaluates alert rules against the active shift's metrics and
// delivers webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	webhooks []config.WebhookConfig
	client   *http.Client
	now      func() time.Time // injectable for deterministic tests
	wg       sync.WaitGroup   // in-flight deliveries

	mu       sync.Mutex
	rules    []rule
	active   map[string]*Alert    // key: "ruleName:shiftKey"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
}

// New creates an Engine from the alert configuration. Rules whose condition
// does not parse are rejected.
func New(cfg config.AlertsConfig) (*Engine, error) {
	e := &Engine{
		webhooks: cfg.Webhooks,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
	}
	if err := e.SetRules(cfg.Rules); err != nil {
		return nil, err
	}
	return e, nil
}

// SetRules replaces the rule set. Alerts of rules that no longer exist are
// dropped without a resolve notification. On error the old rules stay.
func (e *Engine) SetRules(rules []config.AlertRule) error {
	parsed := make([]rule, 0, len(rules))
	names := make(map[string]bool, len(rules))
	for _, r := range rules {
		c, err := parseCondition(r.Condition)
		if err != nil {
			return fmt.Errorf("alerts: rule %q: %w", r.Name, err)
		}
		parsed = append(parsed, rule{AlertRule: r, cond: c})
		names[r.Name] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = parsed
	for key, a := range e.active {
		if !names[a.RuleName] {
			delete(e.active, key)
		}
	}
	return nil
}

// Run evaluates the rules against src every interval until ctx is
// cancelled, then waits for in-flight webhook deliveries.
func (e *Engine) Run(ctx context.Context, interval time.Duration, src Source) {
	t := time.NewTicker(interval)
	defer t.Stop()
	defer e.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m, ok, err := src(ctx)
			if err != nil {
				slog.Warn("alerts: read active shift metrics", "err", err)
				continue
			}
			if ok {
				e.Evaluate(m)
			}
		}
	}
}

// Evaluate tests all rules against m. Alerts that fire are stored and
// webhook delivery is triggered asynchronously. Alerts that were firing
// but whose condition is now false are resolved.
func (e *Engine) Evaluate(m metrics.ShiftMetrics) {
	now := e.now()
	shiftKey := m.Shift.Key()

	e.mu.Lock()
	var outbox []Alert
	for _, r := range e.rules {
		key := r.Name + ":" + shiftKey
		fires, value := r.cond.eval(m)

		if fires {
			if _, firing := e.active[key]; firing {
				continue
			}
			cooldown := r.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			if last, ok := e.lastFire[key]; ok && now.Sub(last) <= cooldown {
				continue
			}
			sev := r.Severity
			if sev == "" {
				sev = "warning"
			}
			a := &Alert{
				ID:        uuid.NewString(),
				RuleName:  r.Name,
				Shift:     shiftKey,
				Condition: r.Condition,
				Severity:  sev,
				Value:     value,
				Message: fmt.Sprintf("[%s] %s fired on %s: %s = %.2f",
					sev, r.Name, shiftKey, r.Condition, value),
				FiredAt: now,
				State:   "firing",
			}
			e.active[key] = a
			e.lastFire[key] = now
			outbox = append(outbox, *a)
			slog.Warn("alerts: fired", "rule", r.Name, "shift", shiftKey, "value", value, "severity", sev)
			continue
		}

		if a, ok := e.active[key]; ok {
			resolved := now
			a.State = "resolved"
			a.ResolvedAt = &resolved
			delete(e.active, key)

			e.history = append(e.history, a)
			if len(e.history) > maxHistoryLen {
				e.history = e.history[len(e.history)-maxHistoryLen:]
			}
			outbox = append(outbox, *a)
			slog.Info("alerts: resolved", "rule", r.Name, "shift", shiftKey)
		}
	}
	e.mu.Unlock()

	for i := range outbox {
		a := outbox[i]
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.deliver(&a)
		}()
	}
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// Wait blocks until in-flight webhook deliveries finish.
func (e *Engine) Wait() { e.wg.Wait() }
