package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openfinance-sandbox/fapigw/internal/enrollment"
	"github.com/openfinance-sandbox/fapigw/internal/fido"
)

const enrollmentsPath = "/enrollments/v1/enrollments/"

type enrollmentPatch struct {
	Cancellation enrollment.CancelInput `json:"cancellation"`
}

type platformRequest struct {
	Platform enrollment.Platform `json:"platform"`
}

type registrationOptionsData struct {
	EnrollmentID string `json:"enrollmentId"`
	fido.RegistrationOptions
}

type consentAuthorisation struct {
	EnrollmentID  string         `json:"enrollmentId"`
	FidoAssertion fido.Assertion `json:"fidoAssertion"`
}

func (a *API) enrollmentRoutes(g *gin.RouterGroup) {
	bound := routeOpts{bindParam: "enrollmentId"}

	g.POST("/enrollments/v1/enrollments", a.secured(routeOpts{}, a.createEnrollment))
	g.GET("/enrollments/v1/enrollments/:enrollmentId", a.secured(routeOpts{}, a.getEnrollment))
	g.PATCH("/enrollments/v1/enrollments/:enrollmentId", a.secured(routeOpts{}, a.revokeEnrollment))
	g.POST("/enrollments/v1/enrollments/:enrollmentId/risk-signals", a.secured(bound, a.riskSignals))
	g.POST("/enrollments/v1/enrollments/:enrollmentId/fido-registration-options", a.secured(bound, a.fidoRegistrationOptions))
	g.POST("/enrollments/v1/enrollments/:enrollmentId/fido-registration", a.secured(bound, a.fidoRegistration))
	g.POST("/enrollments/v1/enrollments/:enrollmentId/fido-sign-options", a.secured(routeOpts{}, a.fidoSignOptions))
	g.POST("/enrollments/v1/consents/:consentId/authorise", a.secured(routeOpts{}, a.authoriseConsent))
}

func (a *API) createEnrollment(ctx context.Context, c *call) (result, error) {
	in, err := decodeData[enrollment.CreateInput](c.payload)
	if err != nil {
		return result{}, err
	}
	e, err := a.deps.Enrollments.Create(ctx, in)
	if err != nil {
		return result{}, err
	}
	return result{http.StatusCreated, a.envelope(e, enrollmentsPath+e.EnrollmentID)}, nil
}

func (a *API) getEnrollment(ctx context.Context, c *call) (result, error) {
	e, err := a.deps.Enrollments.Get(ctx, c.param("enrollmentId"))
	if err != nil {
		return result{}, err
	}
	return result{http.StatusOK, a.envelope(e, enrollmentsPath+e.EnrollmentID)}, nil
}

func (a *API) revokeEnrollment(ctx context.Context, c *call) (result, error) {
	in, err := decodeData[enrollmentPatch](c.payload)
	if err != nil {
		return result{}, err
	}
	if _, err := a.deps.Enrollments.Revoke(ctx, c.param("enrollmentId"), in.Cancellation); err != nil {
		return result{}, err
	}
	return result{status: http.StatusNoContent}, nil
}

func (a *API) riskSignals(ctx context.Context, c *call) (result, error) {
	in, err := decodeData[enrollment.RiskSignals](c.payload)
	if err != nil {
		return result{}, err
	}
	if err := a.deps.Enrollments.SubmitRiskSignals(ctx, c.param("enrollmentId"), in); err != nil {
		return result{}, err
	}
	return result{status: http.StatusNoContent}, nil
}

func (a *API) fidoRegistrationOptions(ctx context.Context, c *call) (result, error) {
	in, err := decodeData[platformRequest](c.payload)
	if err != nil {
		return result{}, err
	}
	id := c.param("enrollmentId")
	rpID, rpName := c.relyingParty()
	opts, err := a.deps.Enrollments.RegistrationOptions(ctx, id, enrollment.RelyingParty{ID: rpID, Name: rpName}, in.Platform)
	if err != nil {
		return result{}, err
	}
	return result{http.StatusCreated, a.envelope(registrationOptionsData{EnrollmentID: id, RegistrationOptions: opts}, "")}, nil
}

func (a *API) fidoRegistration(ctx context.Context, c *call) (result, error) {
	in, err := decodeData[fido.RegistrationRequest](c.payload)
	if err != nil {
		return result{}, err
	}
	if err := a.deps.Enrollments.CompleteRegistration(ctx, c.param("enrollmentId"), in); err != nil {
		return result{}, err
	}
	return result{status: http.StatusNoContent}, nil
}

func (a *API) fidoSignOptions(ctx context.Context, c *call) (result, error) {
	in, err := decodeData[platformRequest](c.payload)
	if err != nil {
		return result{}, err
	}
	rpID, rpName := c.relyingParty()
	opts, err := a.deps.Enrollments.SignOptions(ctx, c.param("enrollmentId"), enrollment.RelyingParty{ID: rpID, Name: rpName}, in.Platform)
	if err != nil {
		return result{}, err
	}
	return result{http.StatusCreated, a.envelope(opts, "")}, nil
}

func (a *API) authoriseConsent(ctx context.Context, c *call) (result, error) {
	in, err := decodeData[consentAuthorisation](c.payload)
	if err != nil {
		return result{}, err
	}
	if err := a.deps.Enrollments.AuthoriseConsent(ctx, c.param("consentId"), in.EnrollmentID, in.FidoAssertion); err != nil {
		return result{}, err
	}
	return result{status: http.StatusNoContent}, nil
}
