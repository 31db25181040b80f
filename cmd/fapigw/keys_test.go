package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/require"

	"github.com/openfinance-sandbox/fapigw/internal/fapitest"
	"github.com/openfinance-sandbox/fapigw/internal/mtls"
)

func TestThumbprintCommand(t *testing.T) {
	cert := fapitest.ClientCert(t, "tpp.example", fapitest.RSAKey(t, 0))
	path := filepath.Join(t.TempDir(), "client.pem")
	require.NoError(t, os.WriteFile(path, fapitest.CertPEM(cert), 0o600))

	var out bytes.Buffer
	cmd := thumbprintCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{path})
	require.NoError(t, cmd.Execute())
	require.Equal(t, mtls.Thumbprint(cert), strings.TrimSpace(out.String()))
}

func TestJWKSCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing.key")
	require.NoError(t, os.WriteFile(path, fapitest.KeyPEM(t, fapitest.RSAKey(t, 1)), 0o600))

	var out bytes.Buffer
	cmd := jwksCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--key", path, "--kid", "kid-1"})
	require.NoError(t, cmd.Execute())

	set, err := jwk.Parse(out.Bytes())
	require.NoError(t, err)
	_, ok := set.LookupKeyID("kid-1")
	require.True(t, ok)
}
