package auth

import (
	"context"
)

// Auther ties the lockout guard to session handling.
type Auther struct {
	guard        *Guard
	sessions     *SessionManager
	logger       Logger
	activitySink ActivitySink
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(guard *Guard, sessions *SessionManager) *Auther {
	return &Auther{
		guard:        guard,
		sessions:     sessions,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = normalizeLogger(logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// Sessions returns the SessionManager used by this Authenticator
func (s *Auther) Sessions() *SessionManager {
	return s.sessions
}

// Login runs the guarded login and opens a session on success.
func (s *Auther) Login(ctx context.Context, email, password string) (*Session, error) {
	result, err := s.guard.AttemptLogin(ctx, email, password)
	if err != nil {
		s.logger.Debug("login rejected", "email", email, "error", err)
		return nil, err
	}

	session, err := s.sessions.Open(result.Account)
	if err != nil {
		s.logger.Error("failed to open session", "account_id", result.Account.ID.String(), "error", err)
		return nil, err
	}
	session.Unblocked = result.Unblocked

	return session, nil
}

// Logout closes the session.
func (s *Auther) Logout(ctx context.Context, session *Session) error {
	if err := s.sessions.Close(ctx, session); err != nil {
		return err
	}

	accountID := ""
	email := ""
	if session.Account != nil {
		accountID = session.Account.ID.String()
		email = session.Account.Email
	}

	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType: ActivityEventLogout,
		Actor:     ActorRef{ID: accountID, Type: "account"},
		AccountID: accountID,
		Email:     email,
	})
	return nil
}
