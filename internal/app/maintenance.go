package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"rbz-rates-watcher/internal/store"
)

// TestConnection verifies the canonical store is reachable and reports the
// most recent rate date. No data is written.
func (a *App) TestConnection(ctx context.Context) error {
	hist, err := a.openHistory()
	if err != nil {
		return err
	}
	defer hist.Close()

	gateway, err := a.openGateway(ctx, hist)
	if err != nil {
		return err
	}
	defer gateway.Close()

	if err := gateway.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	latest, ok, err := gateway.LatestDate(ctx)
	if err != nil {
		return fmt.Errorf("read latest record: %w", err)
	}

	fmt.Fprintln(os.Stdout, "database connection ok")
	if ok {
		fmt.Fprintf(os.Stdout, "latest rate date: %s\n", latest.Format("2006-01-02"))
	} else {
		fmt.Fprintln(os.Stdout, "no rate records stored yet")
	}
	return nil
}

// Migrate applies pending schema migrations to the canonical store.
func (a *App) Migrate(ctx context.Context) error {
	hist, err := a.openHistory()
	if err != nil {
		return err
	}
	defer hist.Close()

	dsn, err := a.resolveDSN(ctx, hist)
	if err != nil {
		return err
	}
	return store.Migrate(ctx, dsn)
}

// SetCredential stores one credential in the local history database. The
// value itself is never logged.
func (a *App) SetCredential(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("credential key is required")
	}

	hist, err := a.openHistory()
	if err != nil {
		return err
	}
	defer hist.Close()

	if err := hist.SetCredential(ctx, key, value); err != nil {
		return err
	}
	a.Logger.Info().Str("key", key).Msg("credential stored")
	return nil
}

// SecretCredentialKey reports whether a credential key holds a secret that
// should be prompted for rather than passed on the command line.
func SecretCredentialKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.HasSuffix(key, "_pass") || strings.HasSuffix(key, "_token")
}
