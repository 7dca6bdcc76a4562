package cafe

import (
	"fmt"
	"io"

	"golang.org/x/text/currency"
	"golang.org/x/text/message"

	"github.com/louisbranch/cafe/internal/services/cafe/domain/tab"
)

type reporter struct {
	printer *message.Printer
	unit    currency.Unit
}

func (r reporter) money(m tab.Money) any {
	return currency.Symbol(r.unit.Amount(m.Major()))
}

// WriteReport prints one block per table followed by a dead-letter summary,
// if any deliveries failed.
func WriteReport(out io.Writer, p *message.Printer, unit currency.Unit, sc Scenario, results []Result, deadLetters int) error {
	r := reporter{printer: p, unit: unit}
	lines := []string{p.Sprintf("report.title", sc.Name)}
	for _, res := range results {
		lines = append(lines, p.Sprintf("report.table", res.Table, res.Waiter))
		for _, rej := range res.Rejections {
			lines = append(lines, "  "+p.Sprintf("report.rejected", rej.Step, rej.Action, rej.Code))
		}
		if res.Closed {
			lines = append(lines, "  "+p.Sprintf("report.closed", r.money(res.OrderValue), r.money(res.AmountPaid), r.money(res.Tip)))
		} else {
			lines = append(lines, "  "+p.Sprintf("report.open",
				len(res.Status.Served), len(res.Status.ToServe), len(res.Status.InPreparation)))
		}
	}
	if deadLetters > 0 {
		lines = append(lines, p.Sprintf("report.dead_letters", deadLetters))
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return nil
}
