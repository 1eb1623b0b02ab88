// Package session caches short-lived processor authentication sessions.
//
// Sessions carry no TTL: the processor does not declare one, so invalidation
// is purely reactive. An entry is discarded only when a downstream call
// reports it invalid, and recreated lazily on next use.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rteixeira/payrail/internal/domain"
)

// Identity is the logical account identity a session belongs to, e.g. the
// shared service disbursement identity or a per-user identity.
type Identity struct {
	UserID string

	// Shared marks a high-traffic service-level identity whose session is
	// written through to the shared external store, avoiding duplicate
	// authentications across process instances.
	Shared bool

	// UseAlternate forces fingerprint derivation with the alternate secret.
	UseAlternate bool
}

// Key returns the cache key for the identity.
func (id Identity) Key() string {
	return id.UserID
}

// Session is one cached processor authentication.
type Session struct {
	Token       string
	Fingerprint string
}

// Authenticator establishes a fresh processor session from a fingerprint.
// Each adapter supplies its own implementation backed by its API client.
type Authenticator interface {
	Authenticate(ctx context.Context, userID, fingerprint string) (string, error)
}

// Config carries the secrets used for fingerprint derivation.
type Config struct {
	ClientID        string
	PrimarySecret   string
	AlternateSecret string
}

// Cache is the credential/session cache for one processor. Safe for
// concurrent use; last-writer-wins on refresh races is acceptable because
// invalidation is reactive.
type Cache struct {
	cfg     Config
	auth    Authenticator
	markers domain.MarkerStore
	shared  domain.SharedSessionStore
	log     zerolog.Logger

	mu      sync.Mutex
	entries map[string]Session
}

// New creates a session cache. markers records which users require the
// alternate secret; shared may be nil when no cross-instance store is wired.
func New(cfg Config, auth Authenticator, markers domain.MarkerStore, shared domain.SharedSessionStore, log zerolog.Logger) *Cache {
	return &Cache{
		cfg:     cfg,
		auth:    auth,
		markers: markers,
		shared:  shared,
		log:     log,
		entries: make(map[string]Session),
	}
}

// Fingerprint derives the authentication fingerprint for the identity:
// hash(userID || clientID || secret). The alternate secret is used when the
// caller requests it explicitly or the user has been durably marked as
// requiring it.
func (c *Cache) Fingerprint(ctx context.Context, id Identity) (string, error) {
	secret := c.cfg.PrimarySecret
	if id.UseAlternate {
		secret = c.cfg.AlternateSecret
	} else if c.markers != nil {
		marked, err := c.markers.IsMarked(ctx, id.UserID)
		if err != nil {
			return "", fmt.Errorf("failed to check alternate secret marker: %w", err)
		}
		if marked {
			secret = c.cfg.AlternateSecret
		}
	}
	sum := sha256.Sum256([]byte(id.UserID + c.cfg.ClientID + secret))
	return hex.EncodeToString(sum[:]), nil
}

// Get returns the identity's session, authenticating fresh when no entry
// exists or forceRefresh is set.
//
// When authentication is rejected with the primary secret, the cache retries
// once with the alternate secret; a success there durably marks the user so
// future derivations default to the alternate without re-probing.
func (c *Cache) Get(ctx context.Context, id Identity, forceRefresh bool) (Session, error) {
	if !forceRefresh {
		c.mu.Lock()
		entry, ok := c.entries[id.Key()]
		c.mu.Unlock()
		if ok {
			return entry, nil
		}

		if id.Shared && c.shared != nil {
			token, err := c.shared.Get(ctx, id.Key())
			if err != nil {
				c.log.Warn().Err(err).Str("identity", id.Key()).Msg("shared session store read failed")
			} else if token != "" {
				entry := Session{Token: token}
				c.store(id, entry)
				return entry, nil
			}
		}
	}

	entry, err := c.authenticate(ctx, id)
	if err != nil {
		return Session{}, err
	}
	c.store(id, entry)

	if id.Shared && c.shared != nil {
		if err := c.shared.Put(ctx, id.Key(), entry.Token); err != nil {
			c.log.Warn().Err(err).Str("identity", id.Key()).Msg("shared session store write failed")
		}
	}
	return entry, nil
}

// Invalidate discards the identity's cached session. Called by adapters when
// a downstream call reports the session invalid.
func (c *Cache) Invalidate(ctx context.Context, id Identity) {
	c.mu.Lock()
	delete(c.entries, id.Key())
	c.mu.Unlock()

	if id.Shared && c.shared != nil {
		if err := c.shared.Delete(ctx, id.Key()); err != nil {
			c.log.Warn().Err(err).Str("identity", id.Key()).Msg("shared session store delete failed")
		}
	}
}

func (c *Cache) authenticate(ctx context.Context, id Identity) (Session, error) {
	fingerprint, err := c.Fingerprint(ctx, id)
	if err != nil {
		return Session{}, err
	}

	token, err := c.auth.Authenticate(ctx, id.UserID, fingerprint)
	if err == nil {
		return Session{Token: token, Fingerprint: fingerprint}, nil
	}

	// Credential rejection with the primary secret: probe the alternate once
	// and, on success, record the promotion durably.
	if errors.Is(err, domain.ErrSessionInvalid) && !id.UseAlternate && c.cfg.AlternateSecret != "" {
		alt := id
		alt.UseAlternate = true
		altFingerprint, ferr := c.Fingerprint(ctx, alt)
		if ferr != nil {
			return Session{}, ferr
		}
		if altFingerprint != fingerprint {
			token, aerr := c.auth.Authenticate(ctx, id.UserID, altFingerprint)
			if aerr == nil {
				if c.markers != nil {
					if merr := c.markers.Mark(ctx, id.UserID); merr != nil {
						c.log.Warn().Err(merr).Str("user_id", id.UserID).Msg("failed to record alternate secret marker")
					}
				}
				return Session{Token: token, Fingerprint: altFingerprint}, nil
			}
			err = aerr
		}
	}
	return Session{}, fmt.Errorf("authentication failed for identity %s: %w", id.Key(), err)
}

func (c *Cache) store(id Identity, entry Session) {
	c.mu.Lock()
	c.entries[id.Key()] = entry
	c.mu.Unlock()
}
