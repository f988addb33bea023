package alerting

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"stock-threshold-alerts/internal/domain"
)

var printer = message.NewPrinter(language.Korean)

// FormatPrice prints domestic prices as whole numbers and foreign prices with
// two decimals, both with thousands separators.
func FormatPrice(market domain.Market, p decimal.Decimal) string {
	if market == domain.MarketDomestic {
		return printer.Sprintf("%d", p.Round(0).IntPart())
	}
	return printer.Sprintf("%.2f", p.Round(2).InexactFloat64())
}

// Breach is one fired alert as shown to people.
type Breach struct {
	Name      string
	Symbol    string
	Market    domain.Market
	Direction domain.Direction
	Price     decimal.Decimal
	Threshold decimal.Decimal
}

// Issue is an instrument whose price could not be used this run.
type Issue struct {
	Name   string
	Symbol string
	Reason string
}

// Note is an alert held back by the rate limiter.
type Note struct {
	Name      string
	Symbol    string
	Direction domain.Direction
	Reason    string
}

// Digest collects everything one run has to report.
type Digest struct {
	At         time.Time
	Breaches   []Breach
	Issues     []Issue
	Suppressed []Note
}

// HasAlerts reports whether any alert fired.
func (d Digest) HasAlerts() bool {
	return len(d.Breaches) > 0
}

// RenderAlerts lays out up-breaches, down-breaches, price errors and
// rate-limit notes in that order. Empty groups are omitted.
func RenderAlerts(d Digest, loc *time.Location) Message {
	if loc == nil {
		loc = time.UTC
	}

	msg := Message{
		Kind:  KindAlert,
		Title: fmt.Sprintf("[Stock Alert] %s", d.At.In(loc).Format("2006-01-02 15:04:05 MST")),
		At:    d.At,
	}

	var up, down []string
	for _, b := range d.Breaches {
		label := fmt.Sprintf("%s (%s)", b.Name, b.Symbol)
		price := FormatPrice(b.Market, b.Price)
		threshold := FormatPrice(b.Market, b.Threshold)
		switch b.Direction {
		case domain.DirectionUp:
			up = append(up, fmt.Sprintf("%s: %s ≥ %s", label, price, threshold))
		case domain.DirectionDown:
			down = append(down, fmt.Sprintf("%s: %s ≤ %s", label, price, threshold))
		}
	}
	if len(up) > 0 {
		msg.Sections = append(msg.Sections, Section{Direction: domain.DirectionUp, Heading: "[상한 돌파] (현재가 ≥ 상한)", Lines: up})
	}
	if len(down) > 0 {
		msg.Sections = append(msg.Sections, Section{Direction: domain.DirectionDown, Heading: "[하한 돌파] (현재가 ≤ 하한)", Lines: down})
	}

	if len(d.Issues) > 0 {
		lines := make([]string, 0, len(d.Issues))
		for _, is := range d.Issues {
			lines = append(lines, fmt.Sprintf("%s (%s): %s", is.Name, is.Symbol, is.Reason))
		}
		msg.Sections = append(msg.Sections, Section{Heading: "[가격 조회 오류]", Lines: lines})
	}

	if len(d.Suppressed) > 0 {
		lines := make([]string, 0, len(d.Suppressed))
		for _, n := range d.Suppressed {
			lines = append(lines, fmt.Sprintf("%s (%s) %s: %s", n.Name, n.Symbol, n.Direction, n.Reason))
		}
		msg.Sections = append(msg.Sections, Section{Heading: "[알림 제한]", Lines: lines})
	}
	return msg
}
