package authz

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/notepin/notepin-backend/internal/models"

	"github.com/aws/aws-lambda-go/events"
)

func jwtRequest(sub string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			Authorizer: &events.APIGatewayV2HTTPRequestContextAuthorizerDescription{
				JWT: &events.APIGatewayV2HTTPRequestContextAuthorizerJWTDescription{
					Claims: map[string]string{"sub": sub},
				},
			},
		},
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	// Authenticated requests resolve to the JWT sub.
	id := Resolve(jwtRequest("u1"), false)
	if id.UserID != "u1" || id.AnonymousID != "" {
		t.Errorf("authenticated identity = %+v", id)
	}
	if !id.IsUser() || id.OwnerKey() != "USER#u1" {
		t.Errorf("owner key = %q", id.OwnerKey())
	}

	// Unauthenticated requests fall back to the anonymous cookie.
	req := events.APIGatewayV2HTTPRequest{
		Cookies: []string{"other=1", AnonCookieName + "=a1"},
	}
	id = Resolve(req, false)
	if id.UserID != "" || id.AnonymousID != "a1" {
		t.Errorf("anonymous identity = %+v", id)
	}
	if id.IsUser() || id.OwnerKey() != "ANON#a1" {
		t.Errorf("owner key = %q", id.OwnerKey())
	}

	// Nothing at all.
	id = Resolve(events.APIGatewayV2HTTPRequest{}, false)
	if id.OwnerKey() != "" {
		t.Errorf("unidentified owner key = %q", id.OwnerKey())
	}
}

func TestUserSubDevBypass(t *testing.T) {
	t.Parallel()

	req := events.APIGatewayV2HTTPRequest{
		Headers: map[string]string{"X-User-Sub": "dev-user"},
	}
	if got := UserSub(req, true); got != "dev-user" {
		t.Errorf("bypass sub = %q", got)
	}
	// The header is ignored unless the bypass is enabled.
	if got := UserSub(req, false); got != "" {
		t.Errorf("sub without bypass = %q", got)
	}
}

func TestUserSubFromAuthHeader(t *testing.T) {
	t.Parallel()

	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u2"}`))
	token := "header." + payload + ".sig"
	req := events.APIGatewayV2HTTPRequest{
		Headers: map[string]string{"Authorization": "Bearer " + token},
	}
	// Unverified JWT parsing is a dev-only convenience.
	if got := UserSub(req, true); got != "u2" {
		t.Errorf("parsed sub = %q", got)
	}
	if got := UserSub(req, false); got != "" {
		t.Errorf("sub without bypass = %q", got)
	}
}

func TestOwns(t *testing.T) {
	t.Parallel()

	userRec := &models.Recording{UserID: "u1"}
	anonRec := &models.Recording{AnonymousID: "a1"}

	cases := []struct {
		name string
		id   Identity
		rec  *models.Recording
		want bool
	}{
		{"user owns own recording", Identity{UserID: "u1"}, userRec, true},
		{"other user denied", Identity{UserID: "u2"}, userRec, false},
		{"anon owns own recording", Identity{AnonymousID: "a1"}, anonRec, true},
		{"other anon denied", Identity{AnonymousID: "a2"}, anonRec, false},
		{"anon cannot claim linked recording", Identity{AnonymousID: "a1"}, &models.Recording{UserID: "u1", AnonymousID: "a1"}, false},
		{"user cannot claim anon recording", Identity{UserID: "u1"}, anonRec, false},
		{"empty identity denied", Identity{}, anonRec, false},
	}
	for _, tc := range cases {
		if got := tc.id.Owns(tc.rec); got != tc.want {
			t.Errorf("%s: Owns = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestEnsureAnonymous(t *testing.T) {
	t.Parallel()

	// Authenticated identities are untouched.
	id, minted := EnsureAnonymous(Identity{UserID: "u1"}, "requested")
	if minted || id.UserID != "u1" || id.AnonymousID != "" {
		t.Errorf("user identity = (%+v, %v)", id, minted)
	}

	// An existing anonymous id is kept.
	id, minted = EnsureAnonymous(Identity{AnonymousID: "a1"}, "requested")
	if minted || id.AnonymousID != "a1" {
		t.Errorf("existing anon = (%+v, %v)", id, minted)
	}

	// A client-requested id is honored and flagged for Set-Cookie.
	id, minted = EnsureAnonymous(Identity{}, "a-client")
	if !minted || id.AnonymousID != "a-client" {
		t.Errorf("requested anon = (%+v, %v)", id, minted)
	}

	// Otherwise a fresh id is minted.
	id, minted = EnsureAnonymous(Identity{}, "")
	if !minted || id.AnonymousID == "" {
		t.Errorf("minted anon = (%+v, %v)", id, minted)
	}
}

func TestAnonCookie(t *testing.T) {
	t.Parallel()

	c := AnonCookie("a1")
	for _, want := range []string{AnonCookieName + "=a1", "Max-Age=31536000", "HttpOnly", "SameSite=Lax", "Secure"} {
		if !strings.Contains(c, want) {
			t.Errorf("cookie %q missing %q", c, want)
		}
	}
}

func TestAnonymousFromRequest(t *testing.T) {
	t.Parallel()

	// The cookie is readable even on an authenticated request; linking needs it.
	req := jwtRequest("u1")
	req.Cookies = []string{AnonCookieName + "=a1"}
	if got := AnonymousFromRequest(req); got != "a1" {
		t.Errorf("anon id = %q", got)
	}
}
