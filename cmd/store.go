package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/district-intel/internal/store"
)

// initStore opens the configured gateway and applies the run log schema.
func initStore(ctx context.Context) (store.Gateway, error) {
	gw, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := gw.Migrate(ctx); err != nil {
		_ = gw.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return gw, nil
}
