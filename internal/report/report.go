// Package report renders synchronizer and recommendation output for the terminal.
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/vadiminshakov/skinsync/internal/domain"
	"github.com/vadiminshakov/skinsync/internal/services/scheduler"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	danger    = lipgloss.AdaptiveColor{Light: "#E0425C", Dark: "#F25D78"}

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			MarginTop(1)

	noteStyle = lipgloss.NewStyle().Foreground(subtle)
	upStyle   = lipgloss.NewStyle().Foreground(special)
	downStyle = lipgloss.NewStyle().Foreground(danger)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(highlight)).
		Headers(headers...)
}

// Title renders a section heading.
func Title(s string) string {
	return titleStyle.Render(strings.ToUpper(s))
}

// Quotes renders one row per item with every marketplace price and the cheapest one.
func Quotes(rows []QuoteRow) string {
	t := newTable("Item", "Steam", "Market", "LisSkins", "Lowest", "Source")
	for _, r := range rows {
		lowest, ok := r.Quote.Lowest()
		if !ok {
			lowest = "-"
		}
		t.Row(r.Item.DisplayName(), r.Quote.Steam.String(), r.Quote.Market.String(), r.Quote.LisSkins.String(),
			strings.TrimSuffix(lowest, "_price"), string(r.Source))
	}
	return t.String()
}

// QuoteRow quote of one item in display currency.
type QuoteRow struct {
	Item   domain.Item
	Quote  domain.PriceQuote
	Source domain.Source
}

// History renders the last n points of a history, all points when n <= 0.
func History(item domain.Item, h domain.History, currency string, n int) string {
	last, ok := h.Last()
	if !ok {
		return noteStyle.Render(fmt.Sprintf("no history for %s", item.DisplayName()))
	}
	summary := noteStyle.Render(fmt.Sprintf("%d points, last %s on %s",
		len(h), domain.NewPrice(last.Price, currency), last.Date))
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}

	t := newTable("Date", "Price")
	for _, p := range h {
		t.Row(p.Date, domain.NewPrice(p.Price, currency).String())
	}
	return Title(item.DisplayName()) + "\n" + summary + "\n" + t.String()
}

// Prediction renders the rescaled prediction with per-day change.
func Prediction(item domain.Item, p domain.Prediction) string {
	var b strings.Builder
	b.WriteString(Title(fmt.Sprintf("%s, %d day forecast", item.DisplayName(), p.Horizon)))
	b.WriteString("\n")
	b.WriteString(noteStyle.Render(fmt.Sprintf("current price %s, model snapshot of %s", p.AnchorPrice, p.AnchorDate)))
	b.WriteString("\n")

	t := newTable("Date", "Predicted", "Change")
	for _, pt := range p.Points {
		t.Row(pt.Date, domain.NewPrice(pt.PredictedPrice, p.AnchorPrice.Currency).String(), Change(pt.PredictedPctChange.InexactFloat64()))
	}
	b.WriteString(t.String())
	return b.String()
}

// Change renders a signed percentage colored by direction.
func Change(pct float64) string {
	s := fmt.Sprintf("%+.2f%%", pct)
	switch {
	case pct > 0:
		return upStyle.Render(s)
	case pct < 0:
		return downStyle.Render(s)
	}
	return s
}

// Records renders recommendation rows in the given order.
func Records(records []domain.RecommendationRecord) string {
	t := newTable("Item", "Current", "Predicted", "Change", "Advice")
	for _, r := range records {
		t.Row(r.Item.DisplayName(), r.CurrentPrice.String(), r.PredictedPrice.String(),
			Change(r.OverallChange.InexactFloat64()), string(r.Advice()))
	}
	return t.String()
}

// Snapshot renders the digest of a recommendation run, or the full table when full is set.
func Snapshot(snap domain.RecommendationSnapshot, full bool) string {
	var b strings.Builder
	b.WriteString(noteStyle.Render(fmt.Sprintf("run %s at %s, horizon %d days",
		snap.ID, snap.Timestamp.Local().Format("2006-01-02 15:04"), snap.Horizon)))
	b.WriteString("\n")

	if full {
		b.WriteString(Title("all items"))
		b.WriteString("\n")
		b.WriteString(Records(snap.All))
		return b.String()
	}

	b.WriteString(Title("recommended"))
	b.WriteString("\n")
	if len(snap.Digest.TopGainers) == 0 {
		b.WriteString(noteStyle.Render("nothing is predicted to grow"))
	} else {
		b.WriteString(Records(snap.Digest.TopGainers))
	}
	b.WriteString("\n")
	b.WriteString(Title("not recommended"))
	b.WriteString("\n")
	if len(snap.Digest.TopLosers) == 0 {
		b.WriteString(noteStyle.Render("nothing is predicted to fall"))
	} else {
		b.WriteString(Records(snap.Digest.TopLosers))
	}
	return b.String()
}

// Progress renders a one-line batch progress indicator.
func Progress(p scheduler.Progress) string {
	line := fmt.Sprintf("[%d/%d] %5.1f%%  eta %s  %s", p.Completed, p.Total, p.Percent(), eta(p.ETASeconds), p.Key)
	if p.Err != nil {
		return line + "  " + downStyle.Render(p.Err.Error())
	}
	return line
}

func eta(seconds float64) string {
	s := int(seconds + 0.5)
	if s >= 60 {
		return fmt.Sprintf("%dm%02ds", s/60, s%60)
	}
	return fmt.Sprintf("%ds", s)
}
