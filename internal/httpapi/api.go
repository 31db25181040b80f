// Package httpapi is the FAPI resource server: a gin router whose
// protected routes run the certificate binding, token introspection,
// request signature and response signing pipeline.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/openfinance-sandbox/fapigw/internal/auth"
	"github.com/openfinance-sandbox/fapigw/internal/enrollment"
	"github.com/openfinance-sandbox/fapigw/internal/fido"
	"github.com/openfinance-sandbox/fapigw/internal/mtls"
	"github.com/openfinance-sandbox/fapigw/internal/obs"
	"github.com/openfinance-sandbox/fapigw/internal/payment"
	"github.com/openfinance-sandbox/fapigw/internal/signing"
	"github.com/openfinance-sandbox/fapigw/internal/trust"
)

const serviceName = "fapigw"

type (
	CertBinder interface {
		FromRequest(r *http.Request) (*mtls.Certificate, error)
	}
	TokenGuard interface {
		Authenticate(ctx context.Context, token string, cert *mtls.Certificate) (auth.TokenDetails, error)
	}
	RequestVerifier interface {
		Verify(ctx context.Context, signed, clientID, audience string) (signing.Verified, error)
	}
	ClientResolver interface {
		ResolveClient(ctx context.Context, clientID string) (trust.Client, error)
	}
	ResponseSigner interface {
		Sign(payload any, audience string) (string, error)
		PublicKeySet() (jwk.Set, error)
	}

	Enrollments interface {
		Create(ctx context.Context, in enrollment.CreateInput) (enrollment.Enrollment, error)
		Get(ctx context.Context, id string) (enrollment.Enrollment, error)
		SubmitRiskSignals(ctx context.Context, id string, signals enrollment.RiskSignals) error
		RegistrationOptions(ctx context.Context, id string, rp enrollment.RelyingParty, platform enrollment.Platform) (fido.RegistrationOptions, error)
		CompleteRegistration(ctx context.Context, id string, req fido.RegistrationRequest) error
		SignOptions(ctx context.Context, id string, rp enrollment.RelyingParty, platform enrollment.Platform) (fido.SignOptions, error)
		Revoke(ctx context.Context, id string, in enrollment.CancelInput) (enrollment.Enrollment, error)
		AuthoriseConsent(ctx context.Context, consentID, enrollmentID string, assertion fido.Assertion) error
	}

	Payments interface {
		CreateConsent(ctx context.Context, in payment.ConsentInput) (payment.Consent, error)
		GetConsent(ctx context.Context, id string) (payment.Consent, error)
		Initiate(ctx context.Context, consentID string, in payment.InitiationInput) (payment.Initiation, error)
		GetPayment(ctx context.Context, id string) (payment.Initiation, error)
		Cancel(ctx context.Context, paymentID string, in payment.CancelInput) (payment.Initiation, error)
	}

	// ReadyProbe reports whether the gateway can serve traffic.
	ReadyProbe interface {
		Check(ctx context.Context) error
	}
)

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Binder      CertBinder
	Guard       TokenGuard
	Verifier    RequestVerifier
	Clients     ClientResolver
	Signer      ResponseSigner
	Enrollments Enrollments
	Payments    Payments
	Ready       ReadyProbe
}

// Config tunes routing and the request pipeline.
type Config struct {
	BasePath           string
	AudiencePrefix     string
	ConsentIDPrefix    string
	Version            string
	RateLimitBurst     int
	RateLimitPerSecond int
	MaxBodyBytes       int64
}

// API is the HTTP layer.
type API struct {
	cfg    Config
	deps   Deps
	engine *gin.Engine
}

func New(cfg Config, deps Deps) *API {
	cfg.BasePath = "/" + strings.Trim(cfg.BasePath, "/")
	if cfg.BasePath == "/" {
		cfg.BasePath = ""
	}
	a := &API{cfg: cfg, deps: deps}
	a.engine = a.routes()
	return a
}

// Handler returns the root http.Handler.
func (a *API) Handler() http.Handler {
	return a.engine
}

func (a *API) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(
		gin.Recovery(),
		RequestID(),
		LoggingJSON(),
		obs.Middleware(),
		SecurityHeaders(),
		RateLimit(a.cfg.RateLimitBurst, a.cfg.RateLimitPerSecond),
		MaxBodyBytes(a.cfg.MaxBodyBytes),
	)
	r.NoRoute(func(c *gin.Context) {
		writeProblem(c, http.StatusNotFound, codeNotFound, "Not found", "No such endpoint")
	})

	r.GET("/healthz", a.healthz)
	r.GET("/readyz", a.readyz)
	r.GET("/metrics", gin.WrapH(obs.Handler()))
	r.GET("/.well-known/jwks.json", a.jwks)

	g := r.Group(a.cfg.BasePath)
	a.enrollmentRoutes(g)
	a.paymentRoutes(g)
	return r
}

func (a *API) healthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"version": a.cfg.Version,
	})
}

func (a *API) readyz(c *gin.Context) {
	if a.deps.Ready != nil {
		if err := a.deps.Ready.Check(c.Request.Context()); err != nil {
			obs.SetReady(false)
			writeJSON(c, http.StatusServiceUnavailable, gin.H{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	obs.SetReady(true)
	writeJSON(c, http.StatusOK, gin.H{"status": "ready"})
}

func (a *API) jwks(c *gin.Context) {
	set, err := a.deps.Signer.PublicKeySet()
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, set)
}

// --- helpers ---

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json; charset=utf-8")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
