package auth

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/openfinance-sandbox/fapigw/internal/mtls"
	"github.com/openfinance-sandbox/fapigw/internal/obs"
)

// Guard authenticates certificate-bound bearer tokens.
type Guard struct {
	introspector  Introspector
	requiredScope string
}

// NewGuard requires scope on every token it accepts.
func NewGuard(introspector Introspector, scope string) *Guard {
	return &Guard{introspector: introspector, requiredScope: scope}
}

// Authenticate introspects token and checks it is active, carries the
// required scope and is bound to cert. Every failure, including an
// unreachable introspection endpoint, is ErrUnauthorized.
func (g *Guard) Authenticate(ctx context.Context, token string, cert *mtls.Certificate) (TokenDetails, error) {
	token = strings.TrimSpace(token)
	if token == "" || cert == nil || cert.Thumbprint == "" {
		return TokenDetails{}, ErrUnauthorized
	}
	td, err := g.introspector.Introspect(ctx, token)
	if err != nil {
		obs.Logger().WithError(err).Error("token introspection failed")
		return TokenDetails{}, ErrUnauthorized
	}
	switch {
	case !td.Active:
		return TokenDetails{}, g.reject("inactive", td)
	case !HasScope(td.Scope, g.requiredScope):
		return TokenDetails{}, g.reject("scope", td)
	case subtle.ConstantTimeCompare([]byte(td.Cnf.X5tS256), []byte(cert.Thumbprint)) != 1:
		return TokenDetails{}, g.reject("certificate_binding", td)
	}
	return td, nil
}

func (g *Guard) reject(reason string, td TokenDetails) error {
	obs.Logger().WithFields(logrus.Fields{
		"reason":    reason,
		"client_id": td.ClientID,
	}).Warn("token rejected")
	return ErrUnauthorized
}
