package auth

import (
	"context"
	"net/url"

	"github.com/openfinance-sandbox/fapigw/internal/upstream"
)

// Confirmation is the RFC 8705 cnf claim.
type Confirmation struct {
	X5tS256 string `json:"x5t#S256"`
}

// TokenDetails is the introspection answer for a bearer token.
type TokenDetails struct {
	Active   bool         `json:"active"`
	Scope    string       `json:"scope"`
	ClientID string       `json:"client_id"`
	Cnf      Confirmation `json:"cnf"`
}

// Introspector asks the authorization server about a token.
type Introspector interface {
	Introspect(ctx context.Context, token string) (TokenDetails, error)
}

// HTTPIntrospector implements RFC 7662 introspection with Basic credentials.
type HTTPIntrospector struct {
	client   *upstream.Client
	endpoint string
	user     string
	password string
}

func NewHTTPIntrospector(client *upstream.Client, endpoint, user, password string) *HTTPIntrospector {
	return &HTTPIntrospector{client: client, endpoint: endpoint, user: user, password: password}
}

func (i *HTTPIntrospector) Introspect(ctx context.Context, token string) (TokenDetails, error) {
	var td TokenDetails
	err := i.client.PostForm(ctx, "introspect", i.endpoint, url.Values{"token": {token}}, i.user, i.password, &td)
	if err != nil {
		return TokenDetails{}, err
	}
	return td, nil
}
