// Package signing verifies client request objects and signs gateway
// responses as PS256 compact JWS.
package signing

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/openfinance-sandbox/fapigw/internal/ids"
)

const defaultResponseTTL = 5 * time.Minute

// Signer produces the gateway's signed response bodies.
type Signer struct {
	key    *rsa.PrivateKey
	keyID  string
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// SignerOption configures a Signer.
type SignerOption func(*Signer) error

// WithKeyFile loads a PEM RSA private key (PKCS#1 or PKCS#8).
func WithKeyFile(path string) SignerOption {
	return func(s *Signer) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("signing: read key: %w", err)
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
		if err != nil {
			return fmt.Errorf("signing: parse key: %w", err)
		}
		s.key = key
		return nil
	}
}

// WithPrivateKey uses an in-memory key.
func WithPrivateKey(key *rsa.PrivateKey) SignerOption {
	return func(s *Signer) error {
		if key == nil {
			return errors.New("signing: nil private key")
		}
		s.key = key
		return nil
	}
}

// WithKeyID sets the kid header.
func WithKeyID(kid string) SignerOption {
	return func(s *Signer) error {
		s.keyID = strings.TrimSpace(kid)
		return nil
	}
}

// WithIssuer sets the iss claim, normally the bank's organisation id.
func WithIssuer(issuer string) SignerOption {
	return func(s *Signer) error {
		s.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) SignerOption {
	return func(s *Signer) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

func NewSigner(opts ...SignerOption) (*Signer, error) {
	s := &Signer{ttl: defaultResponseTTL, now: time.Now}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.key == nil {
		return nil, errors.New("signing: private key is required")
	}
	if s.keyID == "" {
		return nil, errors.New("signing: key id is required")
	}
	if s.issuer == "" {
		return nil, errors.New("signing: issuer is required")
	}
	return s, nil
}

// Sign wraps payload's JSON fields in a JWT with iss, jti, aud, iat and a
// five minute exp.
func (s *Signer) Sign(payload any, audience string) (string, error) {
	claims := jwt.MapClaims{}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: encode payload: %v", ErrSigningFailed, err)
	}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return "", fmt.Errorf("%w: payload must be a JSON object: %v", ErrSigningFailed, err)
	}

	now := s.now().UTC()
	claims["iss"] = s.issuer
	claims["jti"] = ids.JTI()
	claims["aud"] = audience
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(s.ttl).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodPS256, claims)
	token.Header["kid"] = s.keyID
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	return signed, nil
}

// PublicKeySet publishes the verification key so clients can check
// responses.
func (s *Signer) PublicKeySet() (jwk.Set, error) {
	key, err := jwk.FromRaw(&s.key.PublicKey)
	if err != nil {
		return nil, err
	}
	for k, v := range map[string]any{
		jwk.KeyIDKey:     s.keyID,
		jwk.AlgorithmKey: jwa.PS256,
		jwk.KeyUsageKey:  jwk.ForSignature,
	} {
		if err := key.Set(k, v); err != nil {
			return nil, err
		}
	}
	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, err
	}
	return set, nil
}
