// Package channels contains the input/output surfaces that drive the one
// active session: the web chat API and the local console.
package channels

import "context"

// Channel is a user-facing surface. Run blocks until the context is
// cancelled or the surface shuts down.
type Channel interface {
	Name() string
	Run(ctx context.Context) error
}
