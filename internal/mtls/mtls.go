// Package mtls extracts the client's TLS certificate and computes the
// thumbprint tokens are bound to.
package mtls

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// ErrCertificateUnavailable means neither a forwarded header nor a peer
// certificate was presented.
var ErrCertificateUnavailable = errors.New("client certificate unavailable")

// Certificate is a client leaf certificate with its x5t#S256 thumbprint.
type Certificate struct {
	Leaf       *x509.Certificate
	Thumbprint string
}

// CommonName returns the subject CN.
func (c *Certificate) CommonName() string {
	if c == nil || c.Leaf == nil {
		return ""
	}
	return c.Leaf.Subject.CommonName
}

// Thumbprint is base64url(sha256(DER)) without padding.
func Thumbprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Binder resolves the certificate of an inbound request.
type Binder struct {
	header string
}

// NewBinder reads forwarded certificates from header (empty disables it).
func NewBinder(header string) *Binder {
	return &Binder{header: strings.TrimSpace(header)}
}

// FromRequest uses the TLS peer certificate whenever the connection carries
// one; the forwarded header is read only for connections terminated by a
// proxy.
func (b *Binder) FromRequest(r *http.Request) (*Certificate, error) {
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		leaf := r.TLS.PeerCertificates[0]
		return &Certificate{Leaf: leaf, Thumbprint: Thumbprint(leaf)}, nil
	}
	if b.header == "" {
		return nil, ErrCertificateUnavailable
	}
	raw := strings.TrimSpace(r.Header.Get(b.header))
	if raw == "" {
		return nil, ErrCertificateUnavailable
	}
	leaf, err := parseForwarded(raw)
	if err != nil {
		return nil, ErrCertificateUnavailable
	}
	return &Certificate{Leaf: leaf, Thumbprint: Thumbprint(leaf)}, nil
}

// parseForwarded accepts URL-escaped PEM (nginx $ssl_client_escaped_cert),
// raw PEM, or base64 DER.
func parseForwarded(raw string) (*x509.Certificate, error) {
	if strings.Contains(raw, "%") {
		if unescaped, err := url.PathUnescape(raw); err == nil {
			raw = unescaped
		}
	}
	if strings.Contains(raw, "-----BEGIN") {
		block, _ := pem.Decode([]byte(raw))
		if block == nil {
			return nil, errors.New("invalid PEM")
		}
		return x509.ParseCertificate(block.Bytes)
	}
	der, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		if der, err = base64.RawURLEncoding.DecodeString(raw); err != nil {
			return nil, err
		}
	}
	return x509.ParseCertificate(der)
}

// ParsePEM decodes the first certificate of a PEM bundle.
func ParsePEM(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("no certificate PEM block")
	}
	return x509.ParseCertificate(block.Bytes)
}
