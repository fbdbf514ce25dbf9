package secondary

import (
	"context"

	"github.com/example/pm/internal/models"
)

// SessionProvider defines the secondary port to the auth/session collaborator.
type SessionProvider interface {
	// Current returns the signed-in session or errs.ErrNoSession.
	Current(ctx context.Context) (*models.Session, error)

	// SignOut clears stored credentials.
	SignOut(ctx context.Context) error
}

// SessionStore extends SessionProvider with sign-in for the login command.
type SessionStore interface {
	SessionProvider

	// SignIn stores a session.
	SignIn(ctx context.Context, session *models.Session) error
}
