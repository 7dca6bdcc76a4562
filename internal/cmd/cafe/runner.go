package cafe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/cafe/internal/services/cafe/app"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/engine"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/event"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/tab"
	"github.com/louisbranch/cafe/internal/services/cafe/projection/opentabs"
)

// ErrUnexpectedOutcome indicates a step whose result did not match its
// expectation.
var ErrUnexpectedOutcome = errors.New("unexpected step outcome")

// Rejection is a step that the tab declined as expected.
type Rejection struct {
	Step   int
	Action string
	Code   string
}

// Result summarizes one scripted table after its steps ran.
type Result struct {
	Table      int
	Waiter     string
	TabID      string
	Closed     bool
	OrderValue tab.Money
	AmountPaid tab.Money
	Tip        tab.Money
	Status     opentabs.Status
	Rejections []Rejection
}

// RunScenario plays every table of sc against d. Tables run concurrently;
// the first failing table cancels the rest.
func RunScenario(ctx context.Context, d *app.Domain, sc Scenario, logger *zap.Logger) ([]Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	results := make([]Result, len(sc.Tables))
	g, gctx := errgroup.WithContext(ctx)
	for i, table := range sc.Tables {
		g.Go(func() error {
			result, err := runTable(gctx, d, table, logger.With(zap.Int("table", table.Number)))
			if err != nil {
				return fmt.Errorf("table %d: %w", table.Number, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func runTable(ctx context.Context, d *app.Domain, table Table, logger *zap.Logger) (Result, error) {
	result := Result{Table: table.Number, Waiter: table.Waiter}
	tabID, err := d.OpenTab(ctx, table.Number, table.Waiter)
	if err != nil {
		return result, fmt.Errorf("open tab: %w", err)
	}
	result.TabID = tabID
	logger.Debug("tab opened", zap.String("tab_id", tabID))

	for i, step := range table.Steps {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		action, err := step.Action()
		if err != nil {
			return result, fmt.Errorf("step %d: %w", i+1, err)
		}
		stored, err := runStep(ctx, d, table.Number, action, step)
		code, rejected := engine.RejectionCode(err)
		switch {
		case step.Expect != "" && rejected && code == step.Expect:
			result.Rejections = append(result.Rejections, Rejection{Step: i + 1, Action: action, Code: code})
			logger.Debug("step rejected as expected", zap.Int("step", i+1), zap.String("code", code))
			continue
		case step.Expect != "" && err == nil:
			return result, fmt.Errorf("%w: step %d %s succeeded, want %s", ErrUnexpectedOutcome, i+1, action, step.Expect)
		case step.Expect != "" && rejected:
			return result, fmt.Errorf("%w: step %d %s rejected with %s, want %s", ErrUnexpectedOutcome, i+1, action, code, step.Expect)
		case err != nil:
			return result, fmt.Errorf("step %d %s: %w", i+1, action, err)
		}

		if action == actionClose {
			closed, err := closedPayload(stored)
			if err != nil {
				return result, fmt.Errorf("step %d %s: %w", i+1, action, err)
			}
			result.Closed = true
			result.OrderValue = closed.OrderValue
			result.AmountPaid = closed.AmountPaid
			result.Tip = closed.TipValue
		}
	}

	if !result.Closed {
		status, err := d.OpenTabs.TabForTable(table.Number)
		if err != nil {
			return result, fmt.Errorf("read tab status: %w", err)
		}
		result.Status = status
	}
	return result, nil
}

func runStep(ctx context.Context, d *app.Domain, table int, action string, step Step) ([]event.Event, error) {
	switch action {
	case actionOrder:
		return d.PlaceOrder(ctx, table, step.Order...)
	case actionServeDrinks:
		return d.MarkDrinksServed(ctx, table, step.ServeDrinks...)
	case actionPrepareFood:
		return d.MarkFoodPrepared(ctx, table, step.PrepareFood...)
	case actionServeFood:
		return d.MarkFoodServed(ctx, table, step.ServeFood...)
	case actionClose:
		paid, err := tab.ParseMoney(step.Close)
		if err != nil {
			return nil, err
		}
		return d.CloseTab(ctx, table, paid)
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

// closedPayload decodes the settled amounts from the stored close event.
func closedPayload(stored []event.Event) (tab.ClosedPayload, error) {
	for _, evt := range stored {
		if evt.Type != tab.EventTypeClosed {
			continue
		}
		var payload tab.ClosedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return tab.ClosedPayload{}, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		return payload, nil
	}
	return tab.ClosedPayload{}, fmt.Errorf("no %s event stored", tab.EventTypeClosed)
}
