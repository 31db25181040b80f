package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openfinance-sandbox/fapigw/internal/mtls"
	"github.com/openfinance-sandbox/fapigw/internal/signing"
)

func thumbprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "thumbprint [cert.pem]",
		Short: "Print the x5t#S256 thumbprint a token must be bound to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cert, err := mtls.ParsePEM(data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), mtls.Thumbprint(cert))
			return nil
		},
	}
}

func jwksCmd() *cobra.Command {
	var keyPath, kid string
	cmd := &cobra.Command{
		Use:   "jwks",
		Short: "Print the public JWK set of a PS256 signing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := signing.NewSigner(
				signing.WithKeyFile(keyPath),
				signing.WithKeyID(kid),
				signing.WithIssuer("jwks"),
			)
			if err != nil {
				return err
			}
			set, err := signer.PublicKeySet()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(set)
		},
	}
	cmd.Flags().StringVar(&keyPath, "key", os.Getenv("SIGNING_KEY_PATH"), "PEM private key")
	cmd.Flags().StringVar(&kid, "kid", os.Getenv("SIGNING_CERT_KID"), "key id")
	return cmd
}
