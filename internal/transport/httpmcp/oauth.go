package httpmcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"postgres-ssh-mcp/internal/core"
)

// oauthVerifier wraps a cached JWKS-backed ID-token verifier for one
// fixed issuer/audience pair, adapting the teacher's NewOIDC (which
// hands 401 handling to connectrpc.com/authn) to the spec's custom
// WWW-Authenticate challenge and JSON-RPC error body.
type oauthVerifier struct {
	domain   string
	verifier *oidc.IDTokenVerifier
}

func newOAuthVerifier(ctx context.Context, domain, audience string) (*oauthVerifier, error) {
	issuer := "https://" + domain + "/"
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider %q: %w", issuer, err)
	}
	verifier := provider.Verifier(&oidc.Config{
		ClientID:             audience,
		SupportedSigningAlgs: []string{oidc.RS256},
	})
	return &oauthVerifier{domain: domain, verifier: verifier}, nil
}

type verifiedPrincipalKey struct{}

// VerifiedClaims retrieves the raw ID-token claims a successful oauth
// middleware pass attached to the request context.
func VerifiedClaims(ctx context.Context) (map[string]any, bool) {
	v, ok := ctx.Value(verifiedPrincipalKey{}).(map[string]any)
	return v, ok
}

// oauthMiddleware enforces §4.8's bearer-token gate in front of /mcp
// when authMode=oauth. A missing/malformed header or any verification
// failure produces a 401 carrying the exact WWW-Authenticate challenge
// and JSON-RPC error code -32001 the spec requires.
func oauthMiddleware(v *oauthVerifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		challenge := fmt.Sprintf(`Bearer realm="mcp", resource_metadata=%q, scope="openid profile email"`, "https://"+r.Host+"/.well-known/oauth-protected-resource")

		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") == "" {
			unauthorized(w, challenge, "missing or invalid bearer token")
			return
		}
		token := strings.TrimPrefix(auth, "Bearer ")

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		idToken, err := v.verifier.Verify(ctx, token)
		if err != nil {
			unauthorized(w, challenge, "Invalid or expired token")
			return
		}

		var claims map[string]any
		if err := idToken.Claims(&claims); err != nil {
			unauthorized(w, challenge, "Invalid or expired token")
			return
		}

		ctx = context.WithValue(r.Context(), verifiedPrincipalKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, challenge, message string) {
	w.Header().Set("WWW-Authenticate", challenge)
	writeRPCError(w, http.StatusUnauthorized, core.RPCCodeAuth, message)
}

// resourceMetadataURL builds the absolute oauth-protected-resource URL
// advertised in the metadata document, derived from the request so it
// reflects whatever host/scheme the client actually used. The
// WWW-Authenticate challenge in oauthMiddleware always uses the https
// form of this URL.
func resourceMetadataURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") != "https" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/.well-known/oauth-protected-resource", scheme, r.Host)
}
