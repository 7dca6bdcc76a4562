package app

import (
	"context"
	"fmt"

	"github.com/louisbranch/cafe/internal/platform/id"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/command"
	"github.com/louisbranch/cafe/internal/services/cafe/domain/event"
)

// sendForTable resolves the open tab of table through the read model and
// dispatches the command built for it, returning the stored events.
func (d *Domain) sendForTable(ctx context.Context, table int, build func(tabID string) (command.Command, error)) ([]event.Event, error) {
	tabID, err := d.OpenTabs.TabIDForTable(table)
	if err != nil {
		return nil, fmt.Errorf("table %d: %w", table, err)
	}
	cmd, err := build(tabID)
	if err != nil {
		return nil, err
	}
	return d.Dispatcher.SendCommand(ctx, cmd)
}

func newTabID() (string, error) {
	value, err := id.NewID()
	if err != nil {
		return "", fmt.Errorf("new tab id: %w", err)
	}
	return "tab-" + value, nil
}
