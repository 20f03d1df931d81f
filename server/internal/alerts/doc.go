// Package alerts implements threshold rules over the active shift's metrics
// and webhook delivery. Rules such as "loss_rate > 5" or "efficiency < 80"
// are evaluated on a ticker; a firing rule notifies Slack, Teams or a generic
// HTTP target once, honours its cooldown, and notifies again on resolve.
package alerts
