package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openfinance-sandbox/fapigw/internal/audit"
	"github.com/openfinance-sandbox/fapigw/internal/auth"
	"github.com/openfinance-sandbox/fapigw/internal/model"
	"github.com/openfinance-sandbox/fapigw/internal/mtls"
	"github.com/openfinance-sandbox/fapigw/internal/obs"
	"github.com/openfinance-sandbox/fapigw/internal/signing"
	"github.com/openfinance-sandbox/fapigw/internal/trust"
)

const (
	headerIdempotencyKey = "x-idempotency-key"
	contentTypeJWT       = "application/jwt"
)

// call is what a protected handler sees once the pipeline has run.
type call struct {
	gin     *gin.Context
	token   auth.TokenDetails
	cert    *mtls.Certificate
	client  trust.Client
	payload []byte
}

func (c *call) param(name string) string { return c.gin.Param(name) }

// relyingParty binds FIDO ceremonies to the calling client.
func (c *call) relyingParty() (id, name string) {
	return c.cert.CommonName(), c.client.DisplayName
}

// result is a handler's answer. A nil body means a bare status.
type result struct {
	status int
	body   any
}

type handlerFunc func(ctx context.Context, c *call) (result, error)

// routeOpts describe the security requirements of one route.
type routeOpts struct {
	// bindParam names the path parameter that must appear in the token
	// scope as consent:<value>.
	bindParam string
}

// secured wraps h with the FAPI request pipeline:
// certificate -> token -> headers -> scope binding -> request signature
// -> handler -> signed response.
func (a *API) secured(opts routeOpts, h handlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if iid := c.GetHeader(headerInteractionID); iid != "" {
			c.Header(headerInteractionID, iid)
		}
		ctx := c.Request.Context()
		mutating := c.Request.Method != http.MethodGet

		cert, err := a.deps.Binder.FromRequest(c.Request)
		if err != nil {
			a.reject(c, "certificate_unavailable", err)
			return
		}
		td, err := a.deps.Guard.Authenticate(ctx, bearerToken(c.GetHeader("Authorization")), cert)
		if err != nil {
			a.reject(c, "unauthorized", err)
			return
		}
		ctx = auth.ContextWithToken(ctx, td)
		c.Request = c.Request.WithContext(ctx)

		if err := checkHeaders(c, mutating); err != nil {
			a.reject(c, "missing_headers", err)
			return
		}
		if opts.bindParam != "" && !auth.HasConsentScope(td.Scope, c.Param(opts.bindParam)) {
			a.reject(c, "scope_not_bound", auth.ErrUnauthorized)
			return
		}

		cl := &call{gin: c, token: td, cert: cert}
		if mutating {
			body, err := io.ReadAll(c.Request.Body)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					a.reject(c, "payload_too_large", err)
					return
				}
				a.reject(c, "bad_signature", fmt.Errorf("%w: read body: %v", signing.ErrBadSignature, err))
				return
			}
			v, err := a.deps.Verifier.Verify(ctx, string(bytes.TrimSpace(body)), td.ClientID, a.requestAudience(c))
			if err != nil {
				a.reject(c, "bad_signature", err)
				return
			}
			cl.client, cl.payload = v.Client, v.Payload
		} else {
			client, err := a.deps.Clients.ResolveClient(ctx, td.ClientID)
			if err != nil {
				writeError(c, err)
				return
			}
			cl.client = client
		}

		res, err := h(ctx, cl)
		if err != nil {
			writeError(c, err)
			return
		}
		a.respond(c, cl.client, res)
	}
}

// requestAudience is the audience prefix plus the matched route template,
// with every path parameter substituted.
func (a *API) requestAudience(c *gin.Context) string {
	template := strings.TrimPrefix(c.FullPath(), a.cfg.BasePath)
	params := make(map[string]string, len(c.Params))
	for _, p := range c.Params {
		params[":"+p.Key] = p.Value
	}
	return signing.Audience(a.cfg.AudiencePrefix, template, params)
}

// respond signs res.body for the client's organisation. The body is never
// sent unsigned.
func (a *API) respond(c *gin.Context, client trust.Client, res result) {
	if res.body == nil {
		c.Status(res.status)
		c.Writer.WriteHeaderNow()
		return
	}
	signed, err := a.deps.Signer.Sign(res.body, client.OrganisationID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(res.status, contentTypeJWT, []byte(signed))
}

func (a *API) reject(c *gin.Context, reason string, err error) {
	obs.RecordRejection(reason)
	_ = audit.LogEvent(c.Request.Context(), "security.rejected", map[string]any{
		"reason": reason,
		"method": c.Request.Method,
		"path":   c.FullPath(),
	})
	writeError(c, err)
}

func checkHeaders(c *gin.Context, mutating bool) error {
	var missing []string
	if strings.TrimSpace(c.GetHeader(headerInteractionID)) == "" {
		missing = append(missing, headerInteractionID)
	}
	if mutating {
		if !strings.Contains(strings.ToLower(c.GetHeader("Content-Type")), contentTypeJWT) {
			missing = append(missing, "content-type: "+contentTypeJWT)
		}
		if strings.TrimSpace(c.GetHeader(headerIdempotencyKey)) == "" {
			missing = append(missing, headerIdempotencyKey)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", errMissingHeaders, strings.Join(missing, ", "))
	}
	return nil
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// decodeData unmarshals the "data" member of a verified payload.
func decodeData[T any](payload []byte) (T, error) {
	var body struct {
		Data *T `json:"data"`
	}
	var zero T
	if err := json.Unmarshal(payload, &body); err != nil {
		return zero, invalidPayloadError{err}
	}
	if body.Data == nil {
		return zero, invalidPayloadError{errors.New("data is required")}
	}
	return *body.Data, nil
}

// envelope wraps data with links.self under the audience prefix.
func (a *API) envelope(data any, resourcePath string) model.Envelope {
	self := ""
	if resourcePath != "" {
		self = a.cfg.AudiencePrefix + resourcePath
	}
	return model.NewEnvelope(data, self, time.Now())
}
