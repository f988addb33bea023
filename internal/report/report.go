package report

import (
	"fmt"
	"sort"
	"time"

	"stock-threshold-alerts/internal/alerting"
	"stock-threshold-alerts/internal/domain"
)

// DefaultWindowDays is the look-back of the weekly report.
const DefaultWindowDays = 7

// Count is the per-instrument tally inside a window.
type Count struct {
	Symbol string
	Name   string
	Down   int
	Up     int
}

// Total is Down + Up.
func (c Count) Total() int {
	return c.Down + c.Up
}

// Label is "Name (SYMBOL)".
func (c Count) Label() string {
	name := c.Name
	if name == "" {
		name = c.Symbol
	}
	return fmt.Sprintf("%s (%s)", name, c.Symbol)
}

// Summary aggregates alert events over [From, To).
type Summary struct {
	From   time.Time
	To     time.Time
	Total  int
	Down   int
	Up     int
	ByItem []Count
}

// Window returns [now - days, now) in loc.
func Window(now time.Time, days int, loc *time.Location) (time.Time, time.Time) {
	if days <= 0 {
		days = DefaultWindowDays
	}
	if loc == nil {
		loc = time.UTC
	}
	to := now.In(loc)
	return to.AddDate(0, 0, -days), to
}

// Aggregate counts the events inside [from, to). Instruments are sorted by
// total descending, ties broken by symbol.
func Aggregate(events []domain.AlertEvent, from, to time.Time) Summary {
	sum := Summary{From: from, To: to}
	index := map[string]int{}

	for _, ev := range events {
		if ev.At.Before(from) || !ev.At.Before(to) {
			continue
		}
		i, ok := index[ev.Symbol]
		if !ok {
			i = len(sum.ByItem)
			index[ev.Symbol] = i
			sum.ByItem = append(sum.ByItem, Count{Symbol: ev.Symbol, Name: ev.Name})
		}
		switch ev.Direction {
		case domain.DirectionDown:
			sum.ByItem[i].Down++
			sum.Down++
		case domain.DirectionUp:
			sum.ByItem[i].Up++
			sum.Up++
		default:
			continue
		}
		sum.Total++
	}

	sort.SliceStable(sum.ByItem, func(a, b int) bool {
		ta, tb := sum.ByItem[a].Total(), sum.ByItem[b].Total()
		if ta != tb {
			return ta > tb
		}
		return sum.ByItem[a].Symbol < sum.ByItem[b].Symbol
	})
	return sum
}

// Render lays the summary out as a report message. The direction sections
// carry only the instruments with alerts in that direction.
func Render(sum Summary, loc *time.Location) alerting.Message {
	if loc == nil {
		loc = time.UTC
	}
	period := fmt.Sprintf("%s ~ %s", sum.From.In(loc).Format("2006-01-02"), sum.To.In(loc).Format("2006-01-02"))

	msg := alerting.Message{
		Kind:  alerting.KindReport,
		Title: "Weekly Stock Alert Report",
		At:    sum.To,
	}

	overview := alerting.Section{
		Heading: "기간: " + period,
		Lines:   []string{fmt.Sprintf("총 알림: %d건 (하 %d / 상 %d)", sum.Total, sum.Down, sum.Up)},
	}
	msg.Sections = append(msg.Sections, overview)

	byItem := alerting.Section{Heading: "티커별 건수", Placeholder: "지난 기간 알림 없음"}
	var downLines, upLines []string
	for _, c := range sum.ByItem {
		byItem.Lines = append(byItem.Lines, fmt.Sprintf("%s: 하 %d / 상 %d", c.Label(), c.Down, c.Up))
		if c.Down > 0 {
			downLines = append(downLines, fmt.Sprintf("%s: %d", c.Label(), c.Down))
		}
		if c.Up > 0 {
			upLines = append(upLines, fmt.Sprintf("%s: %d", c.Label(), c.Up))
		}
	}
	msg.Sections = append(msg.Sections,
		byItem,
		alerting.Section{Direction: domain.DirectionDown, Heading: "하향 알림", Lines: downLines, Placeholder: "하향 알림 없음"},
		alerting.Section{Direction: domain.DirectionUp, Heading: "상향 알림", Lines: upLines, Placeholder: "상향 알림 없음"},
	)
	return msg
}
