package signing

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/sirupsen/logrus"

	"github.com/openfinance-sandbox/fapigw/internal/obs"
	"github.com/openfinance-sandbox/fapigw/internal/trust"
)

const (
	defaultMaxAge = 300 * time.Second
	defaultLeeway = 5 * time.Second
)

// KeyResolver is the part of trust.Directory the verifier needs.
type KeyResolver interface {
	ResolveClient(ctx context.Context, clientID string) (trust.Client, error)
	KeySet(ctx context.Context, c trust.Client) (jwk.Set, error)
	Invalidate(clientID string)
}

// Verified is an accepted request object.
type Verified struct {
	// Payload is the decoded JWT claims JSON.
	Payload []byte
	Client  trust.Client
}

// Verifier checks PS256 request objects against the sender's key set.
type Verifier struct {
	keys   KeyResolver
	maxAge time.Duration
	leeway time.Duration
	now    func() time.Time
}

type VerifierOption func(*Verifier)

// WithVerifierClock overrides time source (useful for tests).
func WithVerifierClock(fn func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if fn != nil {
			v.now = fn
		}
	}
}

func NewVerifier(keys KeyResolver, opts ...VerifierOption) *Verifier {
	v := &Verifier{keys: keys, maxAge: defaultMaxAge, leeway: defaultLeeway, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify accepts signed only when its signature validates under the
// client's key set, iss is the client's organisation id, aud is exactly
// audience and iat is at most five minutes old (5s skew allowed). Every
// failure is ErrBadSignature.
func (v *Verifier) Verify(ctx context.Context, signed, clientID, audience string) (Verified, error) {
	signed = strings.TrimSpace(signed)
	if signed == "" {
		return Verified{}, v.reject(clientID, errors.New("empty body"))
	}
	client, err := v.keys.ResolveClient(ctx, clientID)
	if err != nil {
		return Verified{}, v.reject(clientID, err)
	}

	payload, err := v.verifyWith(ctx, client, signed, audience)
	if errors.Is(err, errUnknownKeyID) {
		// The client may have rotated keys since they were cached.
		v.keys.Invalidate(clientID)
		if client, err = v.keys.ResolveClient(ctx, clientID); err == nil {
			payload, err = v.verifyWith(ctx, client, signed, audience)
		}
	}
	if err != nil {
		return Verified{}, v.reject(clientID, err)
	}
	return Verified{Payload: payload, Client: client}, nil
}

func (v *Verifier) verifyWith(ctx context.Context, client trust.Client, signed, audience string) ([]byte, error) {
	set, err := v.keys.KeySet(ctx, client)
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodPS256.Alg()}),
		jwt.WithIssuer(client.OrganisationID),
		jwt.WithAudience(audience),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(signed, claims, func(t *jwt.Token) (any, error) {
		return publicKeys(set, t.Header["kid"])
	})
	if err != nil {
		if errors.Is(err, errUnknownKeyID) {
			return nil, errUnknownKeyID
		}
		return nil, err
	}
	if err := v.checkClaims(claims, audience); err != nil {
		return nil, err
	}

	parts := strings.Split(token.Raw, ".")
	payload, err := parser.DecodeSegment(parts[1])
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// checkClaims enforces what the parser options leave open: a single exact
// audience and a mandatory, bounded iat.
func (v *Verifier) checkClaims(claims jwt.MapClaims, audience string) error {
	aud, err := claims.GetAudience()
	if err != nil {
		return err
	}
	if len(aud) != 1 || aud[0] != audience {
		return fmt.Errorf("audience %v does not match %q", []string(aud), audience)
	}
	iat, err := claims.GetIssuedAt()
	if err != nil {
		return err
	}
	if iat == nil {
		return errors.New("iat is required")
	}
	if age := v.now().Sub(iat.Time); age-v.leeway > v.maxAge {
		return fmt.Errorf("token age %s exceeds %s", age.Round(time.Second), v.maxAge)
	}
	return nil
}

// publicKeys returns the key named by kid, or every RSA key in the set
// when the header carries none.
func publicKeys(set jwk.Set, kid any) (any, error) {
	if id, ok := kid.(string); ok && id != "" {
		key, found := set.LookupKeyID(id)
		if !found {
			return nil, errUnknownKeyID
		}
		return rsaKey(key)
	}
	var ks jwt.VerificationKeySet
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		pub, err := rsaKey(key)
		if err != nil {
			continue
		}
		ks.Keys = append(ks.Keys, pub)
	}
	if len(ks.Keys) == 0 {
		return nil, errors.New("no RSA verification keys")
	}
	return ks, nil
}

func rsaKey(key jwk.Key) (*rsa.PublicKey, error) {
	if use := key.KeyUsage(); use != "" && use != string(jwk.ForSignature) {
		return nil, fmt.Errorf("key %s is not a signing key", key.KeyID())
	}
	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("key %s: %w", key.KeyID(), err)
	}
	switch k := raw.(type) {
	case *rsa.PublicKey:
		return k, nil
	case *rsa.PrivateKey:
		return &k.PublicKey, nil
	default:
		return nil, fmt.Errorf("key %s is %T, want RSA", key.KeyID(), raw)
	}
}

func (v *Verifier) reject(clientID string, cause error) error {
	obs.Logger().WithFields(logrus.Fields{
		"client_id": clientID,
		"cause":     cause.Error(),
	}).Warn("request signature rejected")
	return ErrBadSignature
}
