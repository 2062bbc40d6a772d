package ledger

import (
	"context"
	"fmt"

	"finanzas/internal/core"
	"finanzas/internal/storage"
)

// Settings returns the stored settings. Reminders are off until enabled.
func (e *Engine) Settings(ctx context.Context) (core.Settings, error) {
	return storage.Load(ctx, e.store, storage.KeySettings, core.Settings{})
}

func (e *Engine) SaveSettings(ctx context.Context, s core.Settings) error {
	if err := storage.Save(ctx, e.store, storage.KeySettings, s); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
