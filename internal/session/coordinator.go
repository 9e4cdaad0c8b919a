package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vmunix/streamgrab/internal/media"
	"github.com/vmunix/streamgrab/internal/metrics"
)

// Authenticator performs non-interactive re-authentication of a profile,
// typically a refresh-token grant.
type Authenticator interface {
	Refresh(ctx context.Context, p Profile) (Profile, error)
}

// Coordinator switches the shared Session between the normal and the
// alternate profile.
//
// One mutex guards the mode flag and both profiles. Do holds it from the
// start of a switch until the caller's stream resolution returns, so no
// resolution can ever run against credentials another item switched in.
type Coordinator struct {
	mu        sync.Mutex
	mode      Mode
	creds     Credentials
	session   *Session
	auth      Authenticator
	store     CredentialStore // may be nil
	alternate map[media.Quality]bool
	log       *slog.Logger
	now       func() time.Time
}

// NewCoordinator creates a coordinator in normal mode and activates the
// normal profile on the session. alternateQualities lists the qualities that
// require the alternate profile.
func NewCoordinator(sess *Session, creds Credentials, auth Authenticator, store CredentialStore,
	alternateQualities []media.Quality, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	alt := make(map[media.Quality]bool, len(alternateQualities))
	for _, q := range alternateQualities {
		alt[q] = true
	}
	sess.set(creds.Normal)
	return &Coordinator{
		mode:      ModeNormal,
		creds:     creds,
		session:   sess,
		auth:      auth,
		store:     store,
		alternate: alt,
		log:       log,
		now:       time.Now,
	}
}

// ModeFor returns the mode needed to resolve a stream at quality q.
func (c *Coordinator) ModeFor(q media.Quality) Mode {
	if c.alternate[q] {
		return ModeAlternate
	}
	return ModeNormal
}

// Mode returns the active mode. Do not call it from inside Do.
func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SwitchToAlternate activates the alternate profile. It is a no-op if the
// alternate profile is already active. If re-authentication fails the
// normal profile is reinstated and an error is returned.
func (c *Coordinator) SwitchToAlternate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.switchLocked(ctx, ModeAlternate)
}

// RestoreNormal reinstates the normal profile. It is a no-op unless the
// alternate profile is active or force is set.
func (c *Coordinator) RestoreNormal(ctx context.Context, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeAlternate && !force {
		return nil
	}
	return c.activateNormalLocked(ctx)
}

// Do runs fn with the session in mode want. The coordinator's lock is held
// for the whole call, and the mode active before Do is restored on every
// exit path, including a panic in fn.
//
// An expired active profile is refreshed before fn runs. If fn fails with
// media.ErrUnauthorized the active profile is re-authenticated and fn is
// retried once.
func (c *Coordinator) Do(ctx context.Context, want Mode, fn func(ctx context.Context) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prior := c.mode
	if want != prior {
		if err := c.switchLocked(ctx, want); err != nil {
			return err
		}
		// A failed restore leaves the mode at normal and is retried by the
		// next Do; it does not invalidate what fn produced.
		defer func() {
			if c.mode == prior {
				return
			}
			if err := c.switchLocked(context.WithoutCancel(ctx), prior); err != nil {
				c.log.Error("failed to restore session mode", "mode", prior, "error", err)
			}
		}()
	} else if c.active().Expired(c.now()) && c.active().RefreshToken != "" {
		// Switching always re-authenticates, so only an unswitched session
		// can still hold an expired token here.
		c.log.Info("access token expired, re-authenticating", "mode", c.mode)
		if err := c.reauthActiveLocked(ctx); err != nil {
			return err
		}
	}

	err := fn(ctx)
	if errors.Is(err, media.ErrUnauthorized) {
		c.log.Info("session rejected, re-authenticating", "mode", c.mode)
		if rerr := c.reauthActiveLocked(ctx); rerr != nil {
			return errors.Join(err, rerr)
		}
		err = fn(ctx)
	}
	return err
}

func (c *Coordinator) active() Profile {
	if c.mode == ModeAlternate {
		return c.creds.Alternate
	}
	return c.creds.Normal
}

// reauthActiveLocked refreshes the profile of the current mode in place.
func (c *Coordinator) reauthActiveLocked(ctx context.Context) error {
	if c.mode == ModeNormal {
		return c.activateNormalLocked(ctx)
	}
	refreshed, err := c.reauth(ctx, c.creds.Alternate)
	if err != nil {
		metrics.RecordSessionSwitch(ModeAlternate.String(), false)
		return fmt.Errorf("%w: alternate profile: %v", ErrReauthFailed, err)
	}
	c.creds.Alternate = refreshed
	c.session.set(refreshed)
	c.persist()
	metrics.RecordSessionSwitch(ModeAlternate.String(), true)
	return nil
}

func (c *Coordinator) switchLocked(ctx context.Context, to Mode) error {
	if to == ModeNormal {
		return c.activateNormalLocked(ctx)
	}

	if c.mode == ModeAlternate {
		return nil
	}
	if c.creds.Alternate.IsZero() {
		metrics.RecordSessionSwitch(ModeAlternate.String(), false)
		return ErrNoAlternateProfile
	}

	c.session.set(c.creds.Alternate)
	c.mode = ModeAlternate

	refreshed, err := c.reauth(ctx, c.creds.Alternate)
	if err != nil {
		c.session.set(c.creds.Normal)
		c.mode = ModeNormal
		metrics.RecordSessionSwitch(ModeAlternate.String(), false)
		return fmt.Errorf("%w: alternate profile: %v", ErrReauthFailed, err)
	}

	c.creds.Alternate = refreshed
	c.session.set(refreshed)
	c.persist()
	metrics.RecordSessionSwitch(ModeAlternate.String(), true)
	c.log.Debug("session switched", "mode", ModeAlternate)
	return nil
}

func (c *Coordinator) activateNormalLocked(ctx context.Context) error {
	c.session.set(c.creds.Normal)
	c.mode = ModeNormal

	refreshed, err := c.reauth(ctx, c.creds.Normal)
	if err != nil {
		metrics.RecordSessionSwitch(ModeNormal.String(), false)
		return fmt.Errorf("%w: normal profile: %v", ErrReauthFailed, err)
	}

	c.creds.Normal = refreshed
	c.session.set(refreshed)
	c.persist()
	metrics.RecordSessionSwitch(ModeNormal.String(), true)
	c.log.Debug("session switched", "mode", ModeNormal)
	return nil
}

func (c *Coordinator) reauth(ctx context.Context, p Profile) (Profile, error) {
	if c.auth == nil {
		return p, nil
	}
	return c.auth.Refresh(ctx, p)
}

// persist saves refreshed tokens; failures are logged, not returned.
func (c *Coordinator) persist() {
	if c.store == nil {
		return
	}
	if err := c.store.Save(c.creds); err != nil {
		c.log.Warn("failed to save credentials", "error", err)
	}
}
