package cognito

import (
	"context"
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-jose/go-jose/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultFetchTimeout       = 5 * time.Second
	defaultMinRefreshInterval = 30 * time.Second
	maxJWKSBodyBytes          = 1 << 20
)

var (
	// ErrKeyNotFound is returned when no signing key matches the requested kid
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrKeyFetchFailure is returned when the key set cannot be fetched or decoded
	ErrKeyFetchFailure = errors.New("failed to fetch JWKS")
)

// KeySource resolves signing keys by key ID
type KeySource interface {
	Key(ctx context.Context, kid string) (SigningKey, error)
}

// SigningKey is a public key published by the identity provider
type SigningKey struct {
	KeyID     string
	Algorithm string
	Use       string
	Public    crypto.PublicKey
}

// KeySet is an immutable snapshot of the provider's signing keys
type KeySet struct {
	keys      map[string]SigningKey
	fetchedAt time.Time
}

// Lookup returns the key with the given kid
func (s *KeySet) Lookup(kid string) (SigningKey, bool) {
	if s == nil {
		return SigningKey{}, false
	}
	key, ok := s.keys[kid]
	return key, ok
}

// KeyIDs returns the sorted key IDs in the set
func (s *KeySet) KeyIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.keys))
	for kid := range s.keys {
		ids = append(ids, kid)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of keys in the set
func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// FetchedAt returns when the snapshot was fetched
func (s *KeySet) FetchedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.fetchedAt
}

// KeySetStatus describes the state of the key cache for readiness and admin views
type KeySetStatus struct {
	Ready       bool      `json:"ready"`
	KeyIDs      []string  `json:"key_ids"`
	FetchedAt   time.Time `json:"fetched_at,omitempty"`
	LastAttempt time.Time `json:"last_attempt,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// KeySourceConfig holds configuration for JWKSKeySource
type KeySourceConfig struct {
	URL                string
	FetchTimeout       time.Duration
	MinRefreshInterval time.Duration
	HTTPClient         *http.Client
}

// JWKSKeySource fetches and caches a JWKS document.
// Snapshots are swapped atomically; concurrent refreshes share one fetch.
type JWKSKeySource struct {
	url                string
	httpClient         *http.Client
	fetchTimeout       time.Duration
	minRefreshInterval time.Duration
	logger             *zap.Logger
	now                func() time.Time

	snapshot atomic.Pointer[KeySet]
	group    singleflight.Group

	statusMu    sync.RWMutex
	lastErr     error
	lastAttempt time.Time
}

// NewJWKSKeySource creates a key source for the given JWKS URL
func NewJWKSKeySource(cfg KeySourceConfig, logger *zap.Logger) *JWKSKeySource {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.MinRefreshInterval < 0 {
		cfg.MinRefreshInterval = 0
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout}
	}

	return &JWKSKeySource{
		url:                cfg.URL,
		httpClient:         client,
		fetchTimeout:       cfg.FetchTimeout,
		minRefreshInterval: cfg.MinRefreshInterval,
		logger:             logger,
		now:                time.Now,
	}
}

// DefaultKeySourceConfig returns the default fetch settings for url
func DefaultKeySourceConfig(url string) KeySourceConfig {
	return KeySourceConfig{
		URL:                url,
		FetchTimeout:       defaultFetchTimeout,
		MinRefreshInterval: defaultMinRefreshInterval,
	}
}

// URL returns the JWKS endpoint this source reads from
func (s *JWKSKeySource) URL() string {
	return s.url
}

// Key returns the signing key for kid. A cold cache or a kid miss triggers
// at most one refetch for this call.
func (s *JWKSKeySource) Key(ctx context.Context, kid string) (SigningKey, error) {
	current := s.snapshot.Load()
	if key, ok := current.Lookup(kid); ok {
		return key, nil
	}

	if current != nil && !s.refreshAllowed(current) {
		return SigningKey{}, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}

	if err := s.Refresh(ctx); err != nil {
		return SigningKey{}, err
	}

	if key, ok := s.snapshot.Load().Lookup(kid); ok {
		return key, nil
	}
	return SigningKey{}, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

// Snapshot returns the current key set, or nil before the first successful fetch
func (s *JWKSKeySource) Snapshot() *KeySet {
	return s.snapshot.Load()
}

// Refresh fetches the key set and replaces the cached snapshot
func (s *JWKSKeySource) Refresh(ctx context.Context) error {
	// The fetch outlives any single caller so followers are not cancelled by the leader's request
	ch := s.group.DoChan("jwks", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		return s.fetch(fetchCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrKeyFetchFailure, ctx.Err())
	}
}

// Status reports the current cache state
func (s *JWKSKeySource) Status() KeySetStatus {
	current := s.snapshot.Load()

	s.statusMu.RLock()
	defer s.statusMu.RUnlock()

	status := KeySetStatus{
		Ready:       current != nil,
		KeyIDs:      current.KeyIDs(),
		FetchedAt:   current.FetchedAt(),
		LastAttempt: s.lastAttempt,
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	return status
}

// refreshAllowed applies the miss-refresh floor from the later of the last
// successful fetch and the last attempt, so a failing endpoint is not hammered.
func (s *JWKSKeySource) refreshAllowed(current *KeySet) bool {
	if s.minRefreshInterval == 0 {
		return true
	}

	last := current.FetchedAt()
	s.statusMu.RLock()
	if s.lastAttempt.After(last) {
		last = s.lastAttempt
	}
	s.statusMu.RUnlock()

	return s.now().Sub(last) >= s.minRefreshInterval
}

func (s *JWKSKeySource) fetch(ctx context.Context) (*KeySet, error) {
	set, err := s.fetchOnce(ctx)

	s.statusMu.Lock()
	s.lastAttempt = s.now()
	s.lastErr = err
	s.statusMu.Unlock()

	if err != nil {
		s.logger.Error("jwks fetch failed",
			zap.String("url", s.url),
			zap.Error(err))
		return nil, err
	}

	s.snapshot.Store(set)
	s.logger.Info("jwks refreshed",
		zap.String("url", s.url),
		zap.Strings("key_ids", set.KeyIDs()))
	return set, nil
}

func (s *JWKSKeySource) fetchOnce(ctx context.Context) (*KeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrKeyFetchFailure, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFetchFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrKeyFetchFailure, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %v", ErrKeyFetchFailure, err)
	}

	keys, err := s.parseKeySet(body)
	if err != nil {
		return nil, err
	}

	return &KeySet{keys: keys, fetchedAt: s.now()}, nil
}

// parseKeySet decodes keys one by one so a single unsupported entry does not discard the set
func (s *JWKSKeySource) parseKeySet(body []byte) (map[string]SigningKey, error) {
	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to decode JWKS: %v", ErrKeyFetchFailure, err)
	}

	keys := make(map[string]SigningKey, len(doc.Keys))
	for _, raw := range doc.Keys {
		var jwk jose.JSONWebKey
		if err := jwk.UnmarshalJSON(raw); err != nil {
			s.logger.Warn("skipping unparsable jwk", zap.Error(err))
			continue
		}
		key, ok := toSigningKey(jwk)
		if !ok {
			s.logger.Debug("skipping unusable jwk",
				zap.String("kid", jwk.KeyID),
				zap.String("use", jwk.Use))
			continue
		}
		keys[key.KeyID] = key
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: jwks contains no usable keys", ErrKeyFetchFailure)
	}
	return keys, nil
}

func toSigningKey(jwk jose.JSONWebKey) (SigningKey, bool) {
	if jwk.KeyID == "" {
		return SigningKey{}, false
	}
	if jwk.Use != "" && jwk.Use != "sig" {
		return SigningKey{}, false
	}
	if !jwk.IsPublic() {
		jwk = jwk.Public()
	}
	// Symmetric keys have no public half
	if jwk.Key == nil || !jwk.Valid() {
		return SigningKey{}, false
	}

	return SigningKey{
		KeyID:     jwk.KeyID,
		Algorithm: jwk.Algorithm,
		Use:       jwk.Use,
		Public:    jwk.Key,
	}, true
}
