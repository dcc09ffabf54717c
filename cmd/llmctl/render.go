package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/gluk-w/claworc/llm-router/internal/authprofiles"
	"github.com/gluk-w/claworc/llm-router/internal/discovery"
	"github.com/gluk-w/claworc/llm-router/internal/failover"
	"github.com/gluk-w/claworc/llm-router/internal/usage"
)

func setColor(enabled bool) {
	color.NoColor = !enabled
}

func profileStatus(ps authprofiles.ProfileStats) string {
	switch {
	case ps.InCooldown:
		remaining := (time.Duration(ps.CooldownRemainingMs) * time.Millisecond).Round(time.Second)
		return color.RedString("cooldown %s (%s)", remaining, ps.Usage.LastFailureType)
	case ps.Usage.ErrorCount > 0:
		return color.YellowString("failing (%d)", ps.Usage.ErrorCount)
	default:
		return color.GreenString("available")
	}
}

func lastUsed(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// renderProfiles writes one line per profile. Status goes last because its
// color codes would skew tabwriter columns.
func renderProfiles(w io.Writer, stats []authprofiles.ProfileStats) error {
	if len(stats) == 0 {
		_, err := fmt.Fprintln(w, "No auth profiles")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSECRET\tOK\tERR\tLAST USED\tSTATUS")
	for _, ps := range stats {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			ps.ID, ps.Type, ps.Secret, ps.Usage.SuccessCount, ps.Usage.ErrorCount, lastUsed(ps.Usage.LastUsed), profileStatus(ps))
	}
	return tw.Flush()
}

func renderReport(w io.Writer, rep usage.Report) error {
	fmt.Fprintf(w, "%s %s .. %s\n", color.CyanString("Usage"), rep.From, rep.To)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tREQ\tIN\tOUT\tCOST")
	for _, d := range rep.Days {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", d.Date, d.Requests, usage.FormatTokens(d.Input), usage.FormatTokens(d.Output), usage.FormatCost(d.Cost))
	}
	fmt.Fprintf(tw, "total\t%d\t%s\t%s\t%s\n", rep.Requests, usage.FormatTokens(rep.Input), usage.FormatTokens(rep.Output), usage.FormatCost(rep.Cost))
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(rep.Providers) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	_, err := fmt.Fprintln(w, usage.FormatUsageDetailed(rep.Providers))
	return err
}

func renderModels(w io.Writer, models []discovery.Model) error {
	if len(models) == 0 {
		_, err := fmt.Fprintln(w, "No models")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tNAME\tCONTEXT\tSOURCE\tAVAILABLE")
	for _, m := range models {
		ctx := "-"
		if m.ContextWindow > 0 {
			ctx = usage.FormatTokens(int64(m.ContextWindow))
		}
		avail := color.RedString("no")
		if m.Available {
			avail = color.GreenString("yes")
		}
		name := m.DisplayName
		if m.Reasoning {
			name += " (reasoning)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.Ref, name, ctx, m.Source, avail)
	}
	return tw.Flush()
}

func renderAttempts(w io.Writer, attempts []failover.Attempt) {
	for _, a := range attempts {
		if a.Skipped {
			fmt.Fprintf(w, "%s %s/%s skipped: %s\n", color.YellowString("-"), a.Provider, a.Model, a.Reason)
			continue
		}
		line := fmt.Sprintf("%s/%s failed (%s): %s", a.Provider, a.Model, a.FailureType, a.Error)
		if a.ProfileID != "" {
			line += " [" + a.ProfileID + "]"
		}
		fmt.Fprintf(w, "%s %s\n", color.RedString("x"), strings.TrimSpace(line))
	}
}
