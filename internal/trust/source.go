package trust

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/openfinance-sandbox/fapigw/internal/upstream"
)

// ClientDetails is the directory record of a client.
type ClientDetails struct {
	ClientID          string `json:"client_id"`
	JWKSURI           string `json:"jwksUri"`
	SoftwareStatement string `json:"software_statement"`
}

func (c *ClientDetails) UnmarshalJSON(data []byte) error {
	var raw struct {
		ClientID          string `json:"client_id"`
		JWKSURI           string `json:"jwksUri"`
		JWKSURISnake      string `json:"jwks_uri"`
		SoftwareStatement string `json:"software_statement"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.ClientID = raw.ClientID
	c.JWKSURI = raw.JWKSURI
	if c.JWKSURI == "" {
		c.JWKSURI = raw.JWKSURISnake
	}
	c.SoftwareStatement = raw.SoftwareStatement
	return nil
}

// DisplayName reads software_client_name from the software statement. The
// statement is only decoded; its signature belongs to the directory.
func (c ClientDetails) DisplayName(fallback string) string {
	if c.SoftwareStatement == "" {
		return fallback
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.SoftwareStatement, claims); err != nil {
		return fallback
	}
	if name, ok := claims["software_client_name"].(string); ok && strings.TrimSpace(name) != "" {
		return name
	}
	return fallback
}

// HTTPSource talks to the client details endpoint and client key set URIs.
type HTTPSource struct {
	client         *upstream.Client
	detailsBaseURL string
}

func NewHTTPSource(client *upstream.Client, detailsBaseURL string) *HTTPSource {
	return &HTTPSource{client: client, detailsBaseURL: strings.TrimSuffix(detailsBaseURL, "/")}
}

func (s *HTTPSource) ClientDetails(ctx context.Context, clientID string) (ClientDetails, error) {
	var details ClientDetails
	if err := s.client.GetJSON(ctx, "client-details", s.detailsBaseURL+"/"+url.PathEscape(clientID), &details); err != nil {
		return ClientDetails{}, err
	}
	if details.JWKSURI == "" {
		return ClientDetails{}, fmt.Errorf("client %s has no jwksUri", clientID)
	}
	return details, nil
}

func (s *HTTPSource) FetchKeySet(ctx context.Context, jwksURI string) (jwk.Set, error) {
	var raw json.RawMessage
	if err := s.client.GetJSON(ctx, "jwks", jwksURI, &raw); err != nil {
		return nil, err
	}
	set, err := jwk.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse jwks: %w", err)
	}
	return set, nil
}
