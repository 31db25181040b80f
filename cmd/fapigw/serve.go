package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfinance-sandbox/fapigw/internal/auth"
	"github.com/openfinance-sandbox/fapigw/internal/config"
	"github.com/openfinance-sandbox/fapigw/internal/enrollment"
	"github.com/openfinance-sandbox/fapigw/internal/fido"
	"github.com/openfinance-sandbox/fapigw/internal/httpapi"
	"github.com/openfinance-sandbox/fapigw/internal/mtls"
	"github.com/openfinance-sandbox/fapigw/internal/obs"
	"github.com/openfinance-sandbox/fapigw/internal/payment"
	"github.com/openfinance-sandbox/fapigw/internal/signing"
	"github.com/openfinance-sandbox/fapigw/internal/store"
	"github.com/openfinance-sandbox/fapigw/internal/trust"
	"github.com/openfinance-sandbox/fapigw/internal/upstream"
)

func serveCmd() *cobra.Command {
	var envFiles []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFiles...)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringSliceVar(&envFiles, "env-file", nil, "env files to load (default .env.local, .env)")
	return cmd
}

// readiness is false until the listeners are up and again once shutdown
// starts.
type readiness struct{ up atomic.Bool }

func (r *readiness) Check(context.Context) error {
	if !r.up.Load() {
		return errors.New("not serving")
	}
	return nil
}

func run(ctx context.Context, cfg config.Config) error {
	obs.Init()
	obs.InitBuildInfo(version, commit)
	obs.SetLevel(cfg.LogLevel)
	log := obs.Logger()

	signer, err := signing.NewSigner(
		signing.WithKeyFile(cfg.SigningKeyPath),
		signing.WithKeyID(cfg.SigningKeyID),
		signing.WithIssuer(cfg.OrganisationID),
	)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}

	introspection := upstream.New("introspection", cfg.UpstreamTimeout)
	directory := trust.NewDirectory(
		trust.NewHTTPSource(upstream.New("directory", cfg.UpstreamTimeout), cfg.ClientDetailsEndpoint),
		cfg.KeySetCacheTTL,
	)
	fidoClient := fido.NewClient(upstream.New("fido", cfg.UpstreamTimeout), fido.Endpoints{
		RegistrationOptions: cfg.Fido.RegistrationOptions,
		Registration:        cfg.Fido.Registration,
		SignOptions:         cfg.Fido.SignOptions,
		Sign:                cfg.Fido.Sign,
	})

	payments := payment.NewService(
		store.NewMemory[payment.Consent](),
		store.NewMemory[payment.Initiation](),
		payment.WithConsentPrefix(cfg.ConsentIDPrefix),
	)
	enrollments := enrollment.NewService(
		store.NewMemory[enrollment.Enrollment](),
		fidoClient,
		payments,
		enrollment.WithIDPrefix(cfg.ConsentIDPrefix),
	)

	ready := &readiness{}
	api := httpapi.New(httpapi.Config{
		BasePath:           cfg.BasePath,
		AudiencePrefix:     cfg.AudiencePrefix,
		ConsentIDPrefix:    cfg.ConsentIDPrefix,
		Version:            version,
		RateLimitBurst:     cfg.RateLimitBurst,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		MaxBodyBytes:       cfg.MaxBodyBytes,
	}, httpapi.Deps{
		Binder:      mtls.NewBinder(cfg.ClientCertHeader),
		Guard:       auth.NewGuard(auth.NewHTTPIntrospector(introspection, cfg.IntrospectionEndpoint, cfg.IntrospectionUser, cfg.IntrospectionPassword), cfg.RequiredScope),
		Verifier:    signing.NewVerifier(directory),
		Clients:     directory,
		Signer:      signer,
		Enrollments: enrollments,
		Payments:    payments,
		Ready:       ready,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if cfg.TLSEnabled() {
		// Peer certificates are requested but not chain-verified; tokens
		// bind them by thumbprint.
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ClientAuth: tls.RequestClientCert,
		}
	}

	errCh := make(chan error, 2)
	go func() {
		log.WithField("addr", srv.Addr).WithField("tls", cfg.TLSEnabled()).WithField("version", version).Info("starting fapigw")
		var err error
		if cfg.TLSEnabled() {
			err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var grpcHealth *httpapi.GRPCHealth
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			return fmt.Errorf("grpc health listen: %w", err)
		}
		grpcHealth = httpapi.NewGRPCHealth(ready)
		go grpcHealth.Run(ctx, 5*time.Second)
		go func() {
			log.WithField("addr", cfg.GRPCHealthAddr).Info("starting grpc health")
			if err := grpcHealth.Server().Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc health: %w", err)
			}
		}()
	}
	ready.up.Store(true)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	log.Info("shutting down")
	ready.up.Store(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	if grpcHealth != nil {
		grpcHealth.Server().GracefulStop()
	}
	log.Info("stopped")
	return runErr
}
