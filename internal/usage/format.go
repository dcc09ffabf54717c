package usage

import (
	"fmt"
	"sort"
	"strings"
)

// FormatTokens renders a token count compactly: 950, 3.0K, 1.2M.
func FormatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1e3)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// FormatCost renders a dollar estimate with more precision for small sums.
func FormatCost(c float64) string {
	if c > 0 && c < 0.01 {
		return fmt.Sprintf("$%.4f", c)
	}
	return fmt.Sprintf("$%.2f", c)
}

// FormatUsageLine renders rows as a single status line.
func FormatUsageLine(rows []SummaryRow) string {
	if len(rows) == 0 {
		return "No usage today"
	}
	parts := make([]string, 0, len(rows))
	var total float64
	for _, r := range rows {
		parts = append(parts, fmt.Sprintf("%s %d req %s/%s", r.Provider, r.Requests, FormatTokens(r.Input), FormatTokens(r.Output)))
		total += r.Cost
	}
	return strings.Join(parts, " | ") + " | ~" + FormatCost(total)
}

// FormatUsageDetailed renders rows as a multi-line report with a per-model
// breakdown under each provider.
func FormatUsageDetailed(rows []SummaryRow) string {
	if len(rows) == 0 {
		return "No usage today"
	}
	var b strings.Builder
	var total float64
	for _, r := range rows {
		fmt.Fprintf(&b, "%s: %d requests, %s in, %s out, ~%s\n",
			r.Provider, r.Requests, FormatTokens(r.Input), FormatTokens(r.Output), FormatCost(r.Cost))

		models := make([]string, 0, len(r.Models))
		for id := range r.Models {
			models = append(models, id)
		}
		sort.Strings(models)
		for _, id := range models {
			m := r.Models[id]
			fmt.Fprintf(&b, "  %s: %d requests, %s in, %s out\n", id, m.Requests, FormatTokens(m.Input), FormatTokens(m.Output))
		}
		total += r.Cost
	}
	fmt.Fprintf(&b, "Total: ~%s", FormatCost(total))
	return b.String()
}
