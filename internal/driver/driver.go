// Package driver defines the boundary to the external delivery channel: the
// browser-automation sidecar that renders the messaging web client. The
// dispatch core only depends on this interface; the sidecar's internals
// (DOM selection, screenshots, clicks) live outside this repository.
package driver

import (
	"context"
	"errors"
)

var (
	// ErrNotInitialized means the delivery channel has not been started or
	// is unreachable.
	ErrNotInitialized = errors.New("delivery channel not initialized")

	// ErrNoChallenge means no authentication challenge is currently shown.
	ErrNoChallenge = errors.New("no authentication challenge available")
)

// Driver is the delivery channel capability consumed by the dispatch core.
// Every call must resolve within a bounded time; a hung channel is the
// driver's responsibility to time out and report as a failure.
type Driver interface {
	// Send delivers one message. It fails fast when the channel is not
	// ready; any error is recorded as an ordinary ERROR outcome.
	Send(ctx context.Context, recipient, body, attachment string) error

	// ProbeAuthenticated reports whether the authenticated-session marker
	// is currently visible.
	ProbeAuthenticated(ctx context.Context) (bool, error)

	// ProbeChallenge reports whether an authentication-challenge marker
	// (QR code) is currently visible.
	ProbeChallenge(ctx context.Context) (bool, error)

	// ChallengeArtifact returns the challenge image for surfacing to a
	// human, or ErrNoChallenge when absent.
	ChallengeArtifact(ctx context.Context) ([]byte, error)
}
