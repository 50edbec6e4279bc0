package cognito

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

// IssuerURL returns the Cognito issuer for a user pool
func IssuerURL(region, userPoolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
}

// JWKSURL returns the well-known JWKS endpoint for a user pool
func JWKSURL(region, userPoolID string) string {
	return IssuerURL(region, userPoolID) + "/.well-known/jwks.json"
}

// DiscoveryConfig selects how the JWKS endpoint is located
type DiscoveryConfig struct {
	Region     string
	UserPoolID string
	Issuer     string
	JWKSURL    string
	Discovery  bool
	HTTPClient *http.Client
}

// ResolveJWKSURL returns the JWKS endpoint: an explicit URL wins, then OIDC
// discovery against the issuer, then the Cognito well-known path.
func ResolveJWKSURL(ctx context.Context, cfg DiscoveryConfig) (string, error) {
	if cfg.JWKSURL != "" {
		return cfg.JWKSURL, nil
	}

	issuer := cfg.Issuer
	if issuer == "" && cfg.UserPoolID != "" {
		issuer = IssuerURL(cfg.Region, cfg.UserPoolID)
	}

	if cfg.Discovery {
		if issuer == "" {
			return "", errors.New("oidc discovery requires an issuer or user pool")
		}
		if cfg.HTTPClient != nil {
			ctx = oidc.ClientContext(ctx, cfg.HTTPClient)
		}
		provider, err := oidc.NewProvider(ctx, issuer)
		if err != nil {
			return "", fmt.Errorf("%w: discovery failed: %v", ErrKeyFetchFailure, err)
		}
		var meta struct {
			JWKSURI string `json:"jwks_uri"`
		}
		if err := provider.Claims(&meta); err != nil {
			return "", fmt.Errorf("%w: invalid discovery document: %v", ErrKeyFetchFailure, err)
		}
		if meta.JWKSURI == "" {
			return "", fmt.Errorf("%w: discovery document has no jwks_uri", ErrKeyFetchFailure)
		}
		return meta.JWKSURI, nil
	}

	if cfg.UserPoolID == "" {
		return "", errors.New("jwks url or user pool id is required")
	}
	return JWKSURL(cfg.Region, cfg.UserPoolID), nil
}
