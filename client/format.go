package client

import (
	"fmt"
	"time"

	"agentdash/domain"
)

// RelativeTime renders a timestamp the way the activity feed shows it:
// under a minute "Just now", under an hour in minutes, under a day in hours,
// anything older as a calendar date.
func RelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2, 2006")
	}
}

// FormatPercent renders a success rate with one decimal place.
func FormatPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

// FormatLatency renders an average latency in whole milliseconds.
func FormatLatency(ms float64) string {
	return fmt.Sprintf("%.0fms", ms)
}

// FormatMetrics renders a one-line metrics summary for terminal output.
func FormatMetrics(m domain.Metrics) string {
	return fmt.Sprintf("requests=%d success=%s latency=%s agents=%d",
		m.TotalRequests, FormatPercent(m.SuccessRate), FormatLatency(m.AvgLatency), m.ActiveAgents)
}
