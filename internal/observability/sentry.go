// Package observability holds the server's request logging, panic recovery
// and Sentry wiring.
package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry configures the global Sentry client. An empty dsn leaves
// reporting disabled and is not an error.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
