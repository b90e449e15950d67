// Package session drives one run of the tracker: access check, membership resolution,
// manifest sync and character polling, in that order.
package session

import (
	"context"
	"sync"

	"github.com/kpango/glg"
	"github.com/oklog/ulid/v2"

	"github.com/rking788/objective-tracker/models"
	"github.com/rking788/objective-tracker/status"
)

// Status texts sent to the sink.
const (
	CheckingAccess   = "Checking Access..."
	RefreshingAccess = "Refreshing Access..."
	LoadingDatabase  = "Loading Destiny Database..."
	DatabaseFailed   = "Failed to update database!"
)

// Authenticator is the credential manager.
type Authenticator interface {
	EnsureValidAccess(ctx context.Context) error
	Authorize(ctx context.Context, code string) error
	Logout(ctx context.Context) error
}

// Consent produces an authorization code from the user.
type Consent interface {
	Authorize(ctx context.Context) (string, error)
}

// Resolver picks the membership to track.
type Resolver interface {
	Resolve(ctx context.Context) (*models.Membership, error)
}

// Syncer installs manifest updates.
type Syncer interface {
	Sync(ctx context.Context, progress func(float64)) error
}

// Tracker polls the selected character.
type Tracker interface {
	Start(ctx context.Context, membership *models.Membership) error
	Stop()
	Done() <-chan struct{}
	Err() error
}

// Session wires the components of one run together. A Session is used for a single Run.
type Session struct {
	ID ulid.ULID

	auth     Authenticator
	consent  Consent
	resolver Resolver
	manifest Syncer
	tracker  Tracker
	sink     status.Sink

	mu     sync.Mutex
	runCtx context.Context
	syncs  sync.WaitGroup
}

// New creates a Session. consent may be nil when interactive login is not possible, a
// missing authorization is then returned to the caller.
func New(auth Authenticator, consent Consent, resolver Resolver, manifest Syncer, tracker Tracker, sink status.Sink) *Session {
	if sink == nil {
		sink = status.Discard
	}

	return &Session{
		ID:       ulid.Make(),
		auth:     auth,
		consent:  consent,
		resolver: resolver,
		manifest: manifest,
		tracker:  tracker,
		sink:     sink,
	}
}

// Run blocks until ctx is done or the session fails. A nil error means the session was
// ended by ctx. Fatal errors require a new Session, SessionExpired has already cleared the
// stored credentials at that point.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()
	defer s.syncs.Wait()

	glg.Infof("[%s] Starting session", s.ID)

	if err := s.ensureAccess(ctx); err != nil {
		return s.fail(err)
	}

	membership, err := s.resolver.Resolve(ctx)
	if err != nil {
		return s.fail(err)
	}
	glg.Infof("[%s] Tracking membership %s", s.ID, membership)

	s.syncManifest(ctx)

	if err := s.tracker.Start(ctx, membership); err != nil {
		return s.fail(err)
	}

	select {
	case <-ctx.Done():
		s.tracker.Stop()
		glg.Infof("[%s] Session ended", s.ID)
		return nil
	case <-s.tracker.Done():
		if err := s.tracker.Err(); err != nil {
			glg.Warnf("[%s] Session terminated: %s", s.ID, err.Error())
			return err
		}
		return nil
	}
}

// ensureAccess checks the credential and runs the consent step when there is no usable
// authorization code.
func (s *Session) ensureAccess(ctx context.Context) error {
	s.sink.Status(CheckingAccess)

	err := s.auth.EnsureValidAccess(ctx)
	switch status.KindOf(err) {
	case status.KindNotAuthenticated, status.KindExchangeFailed:
		if s.consent == nil {
			return err
		}
	default:
		return err
	}
	glg.Infof("[%s] Authorization required: %s", s.ID, err.Error())

	code, err := s.consent.Authorize(ctx)
	if err != nil {
		return status.Errorf(status.KindNotAuthenticated, err)
	}
	if err := s.auth.Authorize(ctx, code); err != nil {
		return err
	}

	s.sink.Status(RefreshingAccess)
	return s.auth.EnsureValidAccess(ctx)
}

func (s *Session) syncManifest(ctx context.Context) {
	s.sink.Status(LoadingDatabase)

	// The previous dataset stays in use when this fails
	if err := s.manifest.Sync(ctx, s.sink.Progress); err != nil {
		s.sink.Status(DatabaseFailed)
		status.Report(s.sink, err)
	}
}

// FirstAuthorization starts a manifest sync in the background. It is meant to be the
// credential manager's OnAuthorized hook.
func (s *Session) FirstAuthorization() {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		return
	}

	s.syncs.Add(1)
	go func() {
		defer s.syncs.Done()
		s.syncManifest(ctx)
	}()
}

// Logout ends the session and forgets the stored credentials.
func (s *Session) Logout(ctx context.Context) error {
	s.tracker.Stop()
	return s.auth.Logout(ctx)
}

func (s *Session) fail(err error) error {
	if status.KindOf(err) != status.KindCanceled {
		status.Report(s.sink, err)
	}
	glg.Errorf("[%s] Session failed: %s", s.ID, err.Error())

	return err
}
