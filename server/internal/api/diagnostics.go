package api

import (
	"fmt"
	"sort"
	"time"

	"github.com/kalfix/kalfix/server/internal/metrics"
	"github.com/kalfix/kalfix/server/internal/shift"
)

// DiagnosticHint is one human-readable insight about the running shift.
// The dashboard shows these as chips on the status card; clicking one shows
// Detail.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier (used for dedup/ordering).
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown on the chip.
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint (e.g. loss %).
	Value *float64 `json:"value,omitempty"`
}

// Pace below this fraction of the expected count is flagged.
const behindPaceRatio = 0.8

// diagInput is what the diagnostics look at.
type diagInput struct {
	active           bool
	ignoreShiftCheck bool
	metrics          *metrics.ShiftMetrics
	clock            shift.Clock
	now              time.Time
}

// computeDiagnostics derives hints about the running shift, ordered
// critical first, then warnings, then info.
func computeDiagnostics(in diagInput) []DiagnosticHint {
	var hints []DiagnosticHint

	// ── Between shifts ───────────────────────────────────────────────────────
	if !in.active {
		detail := "No shift is running right now (shift A runs 06:00-16:00, shift B 22:00-06:00). " +
			"Readings from the counter are acknowledged but kept in memory only and are not " +
			"attributed to any shift."
		if in.ignoreShiftCheck {
			detail = "The shift check is disabled, so the active shift is not updated on pulses. " +
				"Readings are kept in memory until a shift becomes active on the next tick."
		}
		hints = append(hints, DiagnosticHint{
			Key:    "off_shift",
			Level:  "info",
			Title:  "Between shifts",
			Detail: detail,
		})
		return hints
	}

	m := in.metrics
	if m == nil {
		return hints
	}

	// ── No pulses yet ────────────────────────────────────────────────────────
	if m.Gross == 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "no_pulses",
			Level: "info",
			Title: "No pieces counted",
			Detail: "The shift is open but no pieces have been counted yet. " +
				"If the line is running, check that the counting device is powered and " +
				"can reach the server's /update endpoint.",
		})
	}

	// ── Losses ───────────────────────────────────────────────────────────────
	if m.Loss > 0 {
		pct := m.LossRate
		v := pct
		var level, title, detail string
		switch {
		case pct >= 10:
			level = "critical"
			title = fmt.Sprintf("%.1f%% loss", pct)
			detail = fmt.Sprintf(
				"%d of %d pieces (%.1f%%) were recorded as lost this shift. "+
					"Check the loss distribution to find the dominant reason.",
				m.Loss, m.Gross, pct,
			)
		case pct >= 2:
			level = "warning"
			title = fmt.Sprintf("%.1f%% loss", pct)
			detail = fmt.Sprintf(
				"%d pieces (%.1f%%) were recorded as lost. Monitor whether this number is growing.",
				m.Loss, pct,
			)
		default:
			level = "info"
			title = fmt.Sprintf("%.2f%% minor loss", pct)
			detail = fmt.Sprintf("A small share of production (%.2f%%) was recorded as lost.", pct)
		}
		hints = append(hints, DiagnosticHint{Key: "loss_rate", Level: level, Title: title, Detail: detail, Value: &v})
	}

	// ── Goal and pace ────────────────────────────────────────────────────────
	if m.ShiftGoal == nil {
		hints = append(hints, DiagnosticHint{
			Key:   "no_goal",
			Level: "info",
			Title: "No goal set",
			Detail: "No production goal is registered for this shift, so efficiency " +
				"cannot be computed. Set one with POST /api/v1/goals.",
		})
	} else if hint, ok := paceHint(in, *m.ShiftGoal); ok {
		hints = append(hints, hint)
	}

	// ── All clear ────────────────────────────────────────────────────────────
	if !hasLevel(hints, "warning", "critical") {
		hints = append(hints, DiagnosticHint{
			Key:    "all_clear",
			Level:  "ok",
			Title:  "On track",
			Detail: "Nothing unusual for this shift.",
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank(hints[i].Level) < levelRank(hints[j].Level)
	})
	return hints
}

// paceHint compares net output with the share of the goal expected by now,
// assuming an even pace over the shift window.
func paceHint(in diagInput, goal int64) (DiagnosticHint, bool) {
	start, end, ok := in.clock.Window(in.metrics.Shift)
	if !ok || goal <= 0 {
		return DiagnosticHint{}, false
	}
	elapsed := in.now.Sub(start)
	total := end.Sub(start)
	if elapsed <= 0 || total <= 0 {
		return DiagnosticHint{}, false
	}
	if elapsed > total {
		elapsed = total
	}
	expected := float64(goal) * elapsed.Hours() / total.Hours()
	if expected < 1 {
		return DiagnosticHint{}, false
	}
	ratio := float64(in.metrics.Net) / expected * 100
	if ratio >= behindPaceRatio*100 {
		return DiagnosticHint{}, false
	}
	return DiagnosticHint{
		Key:   "behind_pace",
		Level: "warning",
		Title: fmt.Sprintf("%.0f%% of expected pace", ratio),
		Detail: fmt.Sprintf(
			"About %.0f good pieces were expected by now for a goal of %d; %d were produced. "+
				"At this pace the shift will finish short of its goal.",
			expected, goal, in.metrics.Net,
		),
		Value: &ratio,
	}, true
}

func hasLevel(hints []DiagnosticHint, levels ...string) bool {
	for _, h := range hints {
		for _, l := range levels {
			if h.Level == l {
				return true
			}
		}
	}
	return false
}

func levelRank(level string) int {
	switch level {
	case "critical":
		return 0
	case "warning":
		return 1
	case "info":
		return 2
	default:
		return 3
	}
}
