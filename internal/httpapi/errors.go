package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openfinance-sandbox/fapigw/internal/auth"
	"github.com/openfinance-sandbox/fapigw/internal/enrollment"
	"github.com/openfinance-sandbox/fapigw/internal/mtls"
	"github.com/openfinance-sandbox/fapigw/internal/obs"
	"github.com/openfinance-sandbox/fapigw/internal/payment"
	"github.com/openfinance-sandbox/fapigw/internal/signing"
	"github.com/openfinance-sandbox/fapigw/internal/store"
	"github.com/openfinance-sandbox/fapigw/internal/trust"
	"github.com/openfinance-sandbox/fapigw/internal/upstream"
)

const (
	codeUnauthorized         = "UNAUTHORIZED"
	codeMissingHeaders       = "MISSING_MANDATORY_HEADERS"
	codeBadSignature         = "BAD_SIGNATURE"
	codeInvalidPayload       = "INVALID_PAYLOAD"
	codePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	codeNotFound             = "RESOURCE_NOT_FOUND"
	codeConflict             = "RESOURCE_CONFLICT"
	codeDirectoryUnavailable = "DIRECTORY_UNAVAILABLE"
	codeUpstreamError        = "UPSTREAM_ERROR"
	codeSigningFailed        = "SIGNING_FAILED"
	codeInternal             = "INTERNAL_ERROR"
	codeRateLimited          = "RATE_LIMITED"
)

// errMissingHeaders is raised by the pipeline before any collaborator call.
var errMissingHeaders = errors.New("missing mandatory headers")

// invalidPayloadError reports a body that verified but does not decode
// into the endpoint's DTO.
type invalidPayloadError struct{ err error }

func (e invalidPayloadError) Error() string { return "invalid payload: " + e.err.Error() }
func (e invalidPayloadError) Unwrap() error { return e.err }

type problem struct {
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type problemEnvelope struct {
	Errors []problem `json:"errors"`
	Meta   struct {
		RequestDateTime time.Time `json:"requestDateTime"`
	} `json:"meta"`
}

func writeProblem(c *gin.Context, status int, code, title, detail string) {
	var env problemEnvelope
	env.Errors = []problem{{Code: code, Title: title, Detail: detail}}
	env.Meta.RequestDateTime = time.Now().UTC()
	writeJSON(c, status, env)
}

// writeError maps err onto the error envelope. Security failures carry a
// fixed detail so validation internals never reach the client.
func writeError(c *gin.Context, err error) {
	var (
		upErr    *upstream.Error
		payload  invalidPayloadError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, mtls.ErrCertificateUnavailable):
		writeProblem(c, http.StatusUnauthorized, codeUnauthorized, "Unauthorized", "Access token is missing, inactive or not bound to the client certificate")
	case errors.Is(err, errMissingHeaders):
		writeProblem(c, http.StatusBadRequest, codeMissingHeaders, "Missing mandatory headers", err.Error())
	case errors.Is(err, signing.ErrBadSignature):
		writeProblem(c, http.StatusBadRequest, codeBadSignature, "Bad signature", "Request signature could not be verified")
	case errors.As(err, &tooLarge):
		writeProblem(c, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "Payload too large", fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
	case errors.As(err, &payload),
		errors.Is(err, enrollment.ErrInvalidInput),
		errors.Is(err, payment.ErrInvalidInput):
		writeProblem(c, http.StatusBadRequest, codeInvalidPayload, "Invalid payload", err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeProblem(c, http.StatusNotFound, codeNotFound, "Not found", "Resource not found")
	case errors.Is(err, store.ErrConflict):
		writeProblem(c, http.StatusConflict, codeConflict, "Conflict", err.Error())
	case errors.Is(err, trust.ErrDirectoryUnavailable):
		logFailure(c, err)
		writeProblem(c, http.StatusBadGateway, codeDirectoryUnavailable, "Directory unavailable", "Client directory could not be reached")
	case errors.As(err, &upErr):
		logFailure(c, err)
		writeProblem(c, http.StatusBadGateway, codeUpstreamError, "Upstream error", upErr.Service+" "+upErr.Op+" failed")
	case errors.Is(err, signing.ErrSigningFailed):
		logFailure(c, err)
		writeProblem(c, http.StatusInternalServerError, codeSigningFailed, "Signing failed", "Response could not be signed")
	default:
		logFailure(c, err)
		writeProblem(c, http.StatusInternalServerError, codeInternal, "Internal error", "internal error")
	}
}

func logFailure(c *gin.Context, err error) {
	obs.Logger().WithError(err).
		WithField("path", c.FullPath()).
		WithField("method", c.Request.Method).
		Error("request failed")
}
