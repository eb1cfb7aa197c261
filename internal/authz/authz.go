// Package authz resolves the identity behind a request: an authenticated
// user sub from the API Gateway JWT authorizer, or an anonymous identifier
// held in a long-lived cookie until the visitor signs up.
package authz

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/notepin/notepin-backend/internal/models"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
)

// ErrUnauthorized is returned when a user is not authorized to access a resource.
var ErrUnauthorized = errors.New("unauthorized")

// AnonCookieName is the cookie carrying the anonymous identifier.
const AnonCookieName = "notepin_anon_id"

// Anonymous identifiers live for a year, matching the linking window.
const anonCookieMaxAge = 365 * 24 * 60 * 60

const devBypassHeader = "x-user-sub"

// Identity is the resolved owner of a request. At most one of UserID /
// AnonymousID is set.
type Identity struct {
	UserID      string
	AnonymousID string
}

// IsUser reports whether the identity is an authenticated user.
func (id Identity) IsUser() bool { return id.UserID != "" }

// OwnerKey returns the storage owner key for the identity, or "" when the
// request carries no identity at all.
func (id Identity) OwnerKey() string {
	switch {
	case id.UserID != "":
		return "USER#" + id.UserID
	case id.AnonymousID != "":
		return "ANON#" + id.AnonymousID
	}
	return ""
}

// Owns reports whether the identity owns the recording. Authenticated users
// match on user id; anonymous visitors match on the anonymous identifier,
// but only while the recording is still unlinked.
func (id Identity) Owns(rec *models.Recording) bool {
	if id.UserID != "" && rec.UserID == id.UserID {
		return true
	}
	if id.UserID == "" && id.AnonymousID != "" && rec.UserID == "" && rec.AnonymousID == id.AnonymousID {
		return true
	}
	return false
}

// Resolve extracts the request identity: an authenticated sub when present,
// otherwise the anonymous cookie. The zero Identity means the request is
// fully unidentified.
func Resolve(req events.APIGatewayV2HTTPRequest, devBypass bool) Identity {
	if sub := UserSub(req, devBypass); sub != "" {
		return Identity{UserID: sub}
	}
	return Identity{AnonymousID: anonFromCookies(req.Cookies)}
}

// AnonymousFromRequest returns the anonymous cookie value regardless of
// whether the request is also authenticated. Used when linking anonymous
// data to a signed-in user.
func AnonymousFromRequest(req events.APIGatewayV2HTTPRequest) string {
	return anonFromCookies(req.Cookies)
}

// EnsureAnonymous fills in an anonymous identifier for an unidentified
// request: the client-requested id when given, a fresh UUID otherwise.
// minted reports whether the caller should Set-Cookie the id back.
func EnsureAnonymous(id Identity, requested string) (Identity, bool) {
	if id.IsUser() || id.AnonymousID != "" {
		return id, false
	}
	if requested != "" {
		id.AnonymousID = requested
	} else {
		id.AnonymousID = uuid.NewString()
	}
	return id, true
}

// AnonCookie builds the Set-Cookie value for an anonymous identifier.
func AnonCookie(anonID string) string {
	return fmt.Sprintf("%s=%s; Path=/; Max-Age=%d; Secure; HttpOnly; SameSite=Lax",
		AnonCookieName, anonID, anonCookieMaxAge)
}

// UserSub extracts the authenticated user sub from an HTTP API (v2) request.
func UserSub(req events.APIGatewayV2HTTPRequest, devBypass bool) string {
	// 0) Dev bypass header
	if devBypass {
		if sub := strings.TrimSpace(headerLookup(req.Headers, devBypassHeader)); sub != "" {
			return sub
		}
	}

	// 1) JWT authorizer claims
	if req.RequestContext.Authorizer != nil && req.RequestContext.Authorizer.JWT != nil {
		if sub := req.RequestContext.Authorizer.JWT.Claims["sub"]; sub != "" {
			return sub
		}
	}

	// 2) Fallback: parse JWT from Authorization header (unverified; dev only)
	if devBypass {
		return subFromAuthHeader(req.Headers)
	}
	return ""
}

// --- small utils ---

// headerLookup returns the value of a header key from a map.
func headerLookup(h map[string]string, key string) string {
	if len(h) == 0 {
		return ""
	}
	lk := strings.ToLower(key)
	for k, v := range h {
		if strings.ToLower(k) == lk {
			return v
		}
	}
	return ""
}

// anonFromCookies finds the anonymous identifier among "name=value" cookie
// strings.
func anonFromCookies(cookies []string) string {
	prefix := AnonCookieName + "="
	for _, c := range cookies {
		c = strings.TrimSpace(c)
		if strings.HasPrefix(c, prefix) {
			return strings.TrimPrefix(c, prefix)
		}
	}
	return ""
}

// subFromAuthHeader extracts the "sub" claim from the Authorization header.
func subFromAuthHeader(headers map[string]string) string {
	auth := headerLookup(headers, "Authorization")
	if auth == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		auth = strings.TrimSpace(auth[len("bearer "):])
	}
	parts := strings.Split(auth, ".")
	if len(parts) != 3 {
		return ""
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ""
	}
	var m map[string]any
	if json.Unmarshal(payload, &m) != nil {
		return ""
	}
	if s, ok := m["sub"].(string); ok {
		return s
	}
	return ""
}
