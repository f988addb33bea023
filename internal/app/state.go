package app

import (
	"context"
	"fmt"

	"stock-threshold-alerts/internal/state"
)

// StateShow prints the persisted alert state as JSON.
func (a *App) StateShow(ctx context.Context) error {
	b, err := a.openBackends(ctx, false)
	if err != nil {
		return err
	}
	defer b.Close()

	st, err := b.state.Load(ctx)
	if err != nil {
		return fmt.Errorf("load alert state: %w", err)
	}
	data, err := state.Encode(st)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.Out, string(data))
	return nil
}

// StateMigrate rewrites the persisted state in the current schema version.
// Loading already upgrades legacy records, so a load-save cycle suffices.
func (a *App) StateMigrate(ctx context.Context) error {
	b, err := a.openBackends(ctx, false)
	if err != nil {
		return err
	}
	defer b.Close()

	st, err := b.state.Load(ctx)
	if err != nil {
		return fmt.Errorf("load alert state: %w", err)
	}
	if err := b.state.Save(ctx, st); err != nil {
		return fmt.Errorf("save alert state: %w", err)
	}

	a.Logger.Info().Int("version", state.SchemaVersion).Msg("alert state migrated")
	fmt.Fprintf(a.Out, "state migrated to version %d\n", state.SchemaVersion)
	return nil
}
