// Package report builds an operational safety report: a markdown
// summary of the metrics window, open triage queue and active safety
// configuration, rendered to a standalone HTML page.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/convoguard/convoguard/internal/alerts"
	"github.com/convoguard/convoguard/internal/metrics"
	"github.com/convoguard/convoguard/internal/safetyconfig"
)

// Data is everything one report is built from, captured at a single
// point in time.
type Data struct {
	GeneratedAt time.Time
	Window      time.Duration
	Metrics     metrics.Snapshot
	Config      safetyconfig.Snapshot
	OpenAlerts  []alerts.SafetyAlert
}

// Generator gathers report data from the live stores.
type Generator struct {
	agg    *metrics.Aggregator
	store  *alerts.Store
	config *safetyconfig.Store
}

func NewGenerator(agg *metrics.Aggregator, store *alerts.Store, config *safetyconfig.Store) *Generator {
	return &Generator{agg: agg, store: store, config: config}
}

// maxReportAlerts caps the open-queue table so a flooded triage queue
// does not produce an unreadable report.
const maxReportAlerts = 50

// Gather captures a report snapshot over the given window. A zero
// window means all-time.
func (g *Generator) Gather(ctx context.Context, window time.Duration) (*Data, error) {
	snap := g.config.Snapshot()
	weights := metrics.Weights{
		Hallucination: snap.Config.HallucinationWeight,
		CriticalAlert: snap.Config.CriticalAlertWeight,
	}

	pending, err := g.store.List(ctx, alerts.ListFilter{Status: alerts.StatusPending, Limit: maxReportAlerts})
	if err != nil {
		return nil, fmt.Errorf("listing pending alerts: %w", err)
	}
	escalated, err := g.store.List(ctx, alerts.ListFilter{Status: alerts.StatusEscalated, Limit: maxReportAlerts})
	if err != nil {
		return nil, fmt.Errorf("listing escalated alerts: %w", err)
	}

	return &Data{
		GeneratedAt: time.Now().UTC(),
		Window:      window,
		Metrics:     g.agg.Snapshot(window, weights),
		Config:      snap,
		OpenAlerts:  append(escalated, pending...),
	}, nil
}

// BuildMarkdown composes the report body.
func BuildMarkdown(d *Data) string {
	var b strings.Builder

	b.WriteString("# Safety Report\n\n")
	fmt.Fprintf(&b, "Generated %s", d.GeneratedAt.Format(time.RFC1123))
	if d.Window > 0 {
		fmt.Fprintf(&b, " — window %s", d.Window)
	} else {
		b.WriteString(" — all time")
	}
	b.WriteString("\n\n")

	m := d.Metrics
	fmt.Fprintf(&b, "## Safety Score: %.1f\n\n", m.SafetyScore)

	b.WriteString("## Metrics\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Interactions | %d |\n", m.TotalInteractions)
	fmt.Fprintf(&b, "| Alerts raised | %d |\n", m.TotalAlerts)
	fmt.Fprintf(&b, "| Hallucination rate | %.1f%% |\n", m.HallucinationRate)
	fmt.Fprintf(&b, "| Jailbreaks detected / blocked | %d / %d |\n", m.JailbreaksDetected, m.JailbreaksBlocked)
	fmt.Fprintf(&b, "| Jailbreak prevention rate | %.1f%% |\n", m.JailbreakPreventionRate)
	fmt.Fprintf(&b, "| Responses blocked | %d |\n", m.ResponsesBlocked)
	fmt.Fprintf(&b, "| Auto-approval rate | %.1f%% |\n", m.AutoApprovalRate)
	fmt.Fprintf(&b, "| Manual reviews | %d |\n", m.ManualReviews)
	fmt.Fprintf(&b, "| Escalations | %d |\n", m.Escalations)
	fmt.Fprintf(&b, "| Persona switches | %d |\n", m.PersonaSwitches)
	fmt.Fprintf(&b, "| Open review load | %d |\n", m.OpenReviewLoad)
	fmt.Fprintf(&b, "| Unresolved critical | %d |\n", m.UnresolvedCritical)
	b.WriteString("\n")

	b.WriteString("## Open Triage Queue\n\n")
	if len(d.OpenAlerts) == 0 {
		b.WriteString("No open alerts.\n\n")
	} else {
		b.WriteString("| Alert | Session | Type | Severity | Confidence | Status | Age |\n")
		b.WriteString("|---|---|---|---|---|---|---|\n")
		for _, a := range d.OpenAlerts {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %.0f%% | %s | %s |\n",
				shortID(a.ID), shortID(a.SessionID), a.Type, a.Severity,
				a.Confidence*100, a.Status, age(a.CreatedAt, d.GeneratedAt))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Active Safety Configuration\n\n")
	fmt.Fprintf(&b, "Version %d, updated by %s at %s.\n\n",
		d.Config.Version, updatedBy(d.Config.UpdatedBy), d.Config.UpdatedAt.Format(time.RFC1123))
	if cfgJSON, err := json.MarshalIndent(d.Config.Config, "", "  "); err == nil {
		b.WriteString("```json\n")
		b.Write(cfgJSON)
		b.WriteString("\n```\n")
	}

	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func age(created, now time.Time) string {
	d := now.Sub(created)
	if d < 0 {
		d = 0
	}
	return d.Round(time.Minute).String()
}

func updatedBy(by string) string {
	if by == "" {
		return "system"
	}
	return by
}
