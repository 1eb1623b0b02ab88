package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/rteixeira/payrail/internal/domain"
)

// MockAuthenticator is a mock implementation of Authenticator for testing
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, userID, fingerprint string) (string, error) {
	args := m.Called(ctx, userID, fingerprint)
	return args.String(0), args.Error(1)
}

// MockMarkerStore is a mock implementation of domain.MarkerStore for testing
type MockMarkerStore struct {
	mock.Mock
}

func (m *MockMarkerStore) IsMarked(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockMarkerStore) Mark(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockSharedSessionStore is a mock implementation of domain.SharedSessionStore for testing
type MockSharedSessionStore struct {
	mock.Mock
}

func (m *MockSharedSessionStore) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockSharedSessionStore) Put(ctx context.Context, key, token string) error {
	args := m.Called(ctx, key, token)
	return args.Error(0)
}

func (m *MockSharedSessionStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func fingerprintOf(userID, clientID, secret string) string {
	sum := sha256.Sum256([]byte(userID + clientID + secret))
	return hex.EncodeToString(sum[:])
}

var testConfig = Config{
	ClientID:        "client-1",
	PrimarySecret:   "primary-secret",
	AlternateSecret: "alternate-secret",
}

func TestGet_AuthenticatesOnceAndCaches(t *testing.T) {
	ctx := context.Background()
	auth := new(MockAuthenticator)
	markers := new(MockMarkerStore)
	cache := New(testConfig, auth, markers, nil, zerolog.Nop())

	primaryFp := fingerprintOf("user-1", "client-1", "primary-secret")
	markers.On("IsMarked", ctx, "user-1").Return(false, nil)
	auth.On("Authenticate", ctx, "user-1", primaryFp).Return("token-1", nil).Once()

	first, err := cache.Get(ctx, Identity{UserID: "user-1"}, false)
	assert.NoError(t, err)
	assert.Equal(t, "token-1", first.Token)
	assert.Equal(t, primaryFp, first.Fingerprint)

	second, err := cache.Get(ctx, Identity{UserID: "user-1"}, false)
	assert.NoError(t, err)
	assert.Equal(t, first, second)

	auth.AssertNumberOfCalls(t, "Authenticate", 1)
}

func TestGet_ForceRefreshReauthenticates(t *testing.T) {
	ctx := context.Background()
	auth := new(MockAuthenticator)
	markers := new(MockMarkerStore)
	cache := New(testConfig, auth, markers, nil, zerolog.Nop())

	markers.On("IsMarked", ctx, "user-1").Return(false, nil)
	auth.On("Authenticate", ctx, "user-1", mock.Anything).Return("token-1", nil).Once()
	auth.On("Authenticate", ctx, "user-1", mock.Anything).Return("token-2", nil).Once()

	_, err := cache.Get(ctx, Identity{UserID: "user-1"}, false)
	assert.NoError(t, err)

	refreshed, err := cache.Get(ctx, Identity{UserID: "user-1"}, true)
	assert.NoError(t, err)
	assert.Equal(t, "token-2", refreshed.Token)
	auth.AssertNumberOfCalls(t, "Authenticate", 2)
}

func TestInvalidate_DropsEntry(t *testing.T) {
	ctx := context.Background()
	auth := new(MockAuthenticator)
	markers := new(MockMarkerStore)
	cache := New(testConfig, auth, markers, nil, zerolog.Nop())

	markers.On("IsMarked", ctx, "user-1").Return(false, nil)
	auth.On("Authenticate", ctx, "user-1", mock.Anything).Return("token-1", nil).Once()
	auth.On("Authenticate", ctx, "user-1", mock.Anything).Return("token-2", nil).Once()

	_, err := cache.Get(ctx, Identity{UserID: "user-1"}, false)
	assert.NoError(t, err)

	cache.Invalidate(ctx, Identity{UserID: "user-1"})

	entry, err := cache.Get(ctx, Identity{UserID: "user-1"}, false)
	assert.NoError(t, err)
	assert.Equal(t, "token-2", entry.Token)
}

func TestGet_AlternateSecretPromotion(t *testing.T) {
	ctx := context.Background()
	auth := new(MockAuthenticator)
	markers := new(MockMarkerStore)
	cache := New(testConfig, auth, markers, nil, zerolog.Nop())

	primaryFp := fingerprintOf("user-2", "client-1", "primary-secret")
	alternateFp := fingerprintOf("user-2", "client-1", "alternate-secret")

	markers.On("IsMarked", ctx, "user-2").Return(false, nil)
	markers.On("Mark", ctx, "user-2").Return(nil).Once()
	auth.On("Authenticate", ctx, "user-2", primaryFp).Return("", domain.ErrSessionInvalid).Once()
	auth.On("Authenticate", ctx, "user-2", alternateFp).Return("alt-token", nil).Once()

	entry, err := cache.Get(ctx, Identity{UserID: "user-2"}, false)
	assert.NoError(t, err)
	assert.Equal(t, "alt-token", entry.Token)
	assert.Equal(t, alternateFp, entry.Fingerprint)

	// The promotion is recorded durably so future derivations skip the probe.
	markers.AssertCalled(t, "Mark", ctx, "user-2")
}

func TestGet_MarkedUserDefaultsToAlternate(t *testing.T) {
	ctx := context.Background()
	auth := new(MockAuthenticator)
	markers := new(MockMarkerStore)
	cache := New(testConfig, auth, markers, nil, zerolog.Nop())

	alternateFp := fingerprintOf("user-3", "client-1", "alternate-secret")

	markers.On("IsMarked", ctx, "user-3").Return(true, nil)
	auth.On("Authenticate", ctx, "user-3", alternateFp).Return("alt-token", nil).Once()

	entry, err := cache.Get(ctx, Identity{UserID: "user-3"}, false)
	assert.NoError(t, err)
	assert.Equal(t, "alt-token", entry.Token)
	auth.AssertNumberOfCalls(t, "Authenticate", 1)
}

func TestGet_SharedIdentityUsesExternalStore(t *testing.T) {
	ctx := context.Background()
	auth := new(MockAuthenticator)
	markers := new(MockMarkerStore)
	shared := new(MockSharedSessionStore)
	cache := New(testConfig, auth, markers, shared, zerolog.Nop())

	shared.On("Get", ctx, "service-disbursement").Return("shared-token", nil).Once()

	entry, err := cache.Get(ctx, Identity{UserID: "service-disbursement", Shared: true}, false)
	assert.NoError(t, err)
	assert.Equal(t, "shared-token", entry.Token)

	// A shared-store hit avoids a duplicate authentication entirely.
	auth.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything, mock.Anything)
}

func TestGet_SharedIdentityWritesThrough(t *testing.T) {
	ctx := context.Background()
	auth := new(MockAuthenticator)
	markers := new(MockMarkerStore)
	shared := new(MockSharedSessionStore)
	cache := New(testConfig, auth, markers, shared, zerolog.Nop())

	shared.On("Get", ctx, "service-disbursement").Return("", nil).Once()
	shared.On("Put", ctx, "service-disbursement", "fresh-token").Return(nil).Once()
	markers.On("IsMarked", ctx, "service-disbursement").Return(false, nil)
	auth.On("Authenticate", ctx, "service-disbursement", mock.Anything).Return("fresh-token", nil).Once()

	entry, err := cache.Get(ctx, Identity{UserID: "service-disbursement", Shared: true}, false)
	assert.NoError(t, err)
	assert.Equal(t, "fresh-token", entry.Token)
	shared.AssertExpectations(t)
}

func TestGet_AuthFailurePropagates(t *testing.T) {
	ctx := context.Background()
	auth := new(MockAuthenticator)
	markers := new(MockMarkerStore)
	cache := New(testConfig, auth, markers, nil, zerolog.Nop())

	markers.On("IsMarked", ctx, "user-4").Return(false, nil)
	auth.On("Authenticate", ctx, "user-4", mock.Anything).Return("", domain.ErrProcessorUnavailable)

	_, err := cache.Get(ctx, Identity{UserID: "user-4"}, false)
	assert.ErrorIs(t, err, domain.ErrProcessorUnavailable)
}
