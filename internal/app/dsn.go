package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rbz-rates-watcher/internal/history"
)

// resolveDSN returns the PostgreSQL DSN for the canonical store. Explicit
// configuration (file or RBZWATCHER_DATABASE_DSN) wins; otherwise the
// credential store supplies a base URI plus an optional user/password pair.
func (a *App) resolveDSN(ctx context.Context, hist *history.Store) (string, error) {
	if dsn := strings.TrimSpace(a.Config.Database.DSN); dsn != "" {
		return dsn, nil
	}

	base, ok, err := hist.Credential(ctx, "postgres_uri")
	if err != nil {
		return "", fmt.Errorf("read postgres_uri credential: %w", err)
	}
	base = strings.TrimSpace(base)
	if !ok || base == "" {
		return "", errors.New("database dsn not configured; set database.dsn or run set-credential postgres_uri")
	}

	user, _, err := hist.Credential(ctx, "postgres_user")
	if err != nil {
		return "", fmt.Errorf("read postgres_user credential: %w", err)
	}
	pass, _, err := hist.Credential(ctx, "postgres_pass")
	if err != nil {
		return "", fmt.Errorf("read postgres_pass credential: %w", err)
	}

	return injectCredentials(base, strings.TrimSpace(user), pass), nil
}

// injectCredentials splices a stored user/password pair into a base URI.
// Injection only happens when both values are present and the URI carries an
// "@" marker: a literal "user:pwd" placeholder is substituted in place, any
// other credential segment is replaced wholesale. URIs without a scheme
// separator pass through untouched.
func injectCredentials(base, user, pass string) string {
	if user == "" || pass == "" || !strings.Contains(base, "@") {
		return base
	}

	cred := user + ":" + pass
	if strings.Contains(base, "user:pwd@") {
		return strings.ReplaceAll(base, "user:pwd", cred)
	}

	scheme, rest, found := strings.Cut(base, "://")
	if !found {
		return base
	}
	if idx := strings.LastIndex(rest, "@"); idx >= 0 {
		rest = rest[idx+1:]
	}
	return scheme + "://" + cred + "@" + rest
}
