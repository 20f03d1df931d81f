package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Event names carried by the generic HTTP payload.
const (
	EventFiring   = "shift_alert.firing"
	EventResolved = "shift_alert.resolved"
)

// HTTPPayload is the body posted to "http" webhooks.
type HTTPPayload struct {
	Event     string    `json:"event"`
	Shift     string    `json:"shift"`
	Rule      string    `json:"rule"`
	Condition string    `json:"condition"`
	Value     float64   `json:"value"`
	At        time.Time `json:"at"`
	Alert     Alert     `json:"alert"`
}

// deliver posts a to every configured webhook. Failures are logged per
// target and never reach the evaluation loop.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			slog.Debug("alerts: webhook url unset, skipping", "type", wh.Type, "url_env", wh.URLEnv)
			continue
		}

		var body []byte
		switch wh.Type {
		case "slack":
			body = slackBody(a)
		case "teams":
			body = teamsBody(a)
		case "http":
			body = httpBody(a)
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err := e.post(url, body); err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type, "rule", a.RuleName, "shift", a.Shift, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered",
			"type", wh.Type, "rule", a.RuleName, "shift", a.Shift, "state", a.State)
	}
}

func slackBody(a *Alert) []byte {
	text := fmt.Sprintf("*%s* %s\n>Shift: %s\n>Value: %s",
		severityLabel(a.Severity), a.Message, a.Shift, formatValue(a.Value))
	if a.State == "resolved" {
		text = fmt.Sprintf("*[RESOLVED]* %s on %s (%s)", a.RuleName, a.Shift, a.Condition)
	}
	body, _ := json.Marshal(map[string]string{"text": text})
	return body
}

func teamsBody(a *Alert) []byte {
	type fact struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	facts := []fact{
		{"Shift", a.Shift},
		{"Rule", a.RuleName},
		{"Condition", a.Condition},
		{"Value", formatValue(a.Value)},
		{"Fired at", a.FiredAt.Format(time.RFC3339)},
	}
	if a.ResolvedAt != nil {
		facts = append(facts, fact{"Resolved at", a.ResolvedAt.Format(time.RFC3339)})
	}
	color := severityColor(a.Severity)
	if a.State == "resolved" {
		color = resolvedColor
	}
	body, _ := json.Marshal(map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": color,
		"summary":    a.RuleName,
		"title":      fmt.Sprintf("Kalfix alert: %s (%s)", a.RuleName, a.State),
		"sections": []map[string]any{{
			"activityTitle": a.Message,
			"facts":         facts,
		}},
	})
	return body
}

func httpBody(a *Alert) []byte {
	p := HTTPPayload{
		Event:     EventFiring,
		Shift:     a.Shift,
		Rule:      a.RuleName,
		Condition: a.Condition,
		Value:     a.Value,
		At:        a.FiredAt,
		Alert:     *a,
	}
	if a.State == "resolved" && a.ResolvedAt != nil {
		p.Event = EventResolved
		p.At = *a.ResolvedAt
	}
	body, _ := json.Marshal(p)
	return body
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "kalfix-alerts")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// formatValue prints whole numbers without decimals.
func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

const resolvedColor = "2EB67D"

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
