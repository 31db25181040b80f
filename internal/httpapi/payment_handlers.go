package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openfinance-sandbox/fapigw/internal/auth"
	"github.com/openfinance-sandbox/fapigw/internal/payment"
)

const (
	consentsPath = "/payments/v3/consents/"
	paymentsPath = "/payments/v3/pix/payments/"
)

func (a *API) paymentRoutes(g *gin.RouterGroup) {
	g.POST("/payments/v3/consents", a.secured(routeOpts{}, a.createConsent))
	g.GET("/payments/v3/consents/:consentId", a.secured(routeOpts{}, a.getConsent))
	g.POST("/payments/v3/pix/payments", a.secured(routeOpts{}, a.initiatePayment))
	g.GET("/payments/v3/pix/payments/:paymentId", a.secured(routeOpts{}, a.getPayment))
	g.PATCH("/payments/v3/pix/payments/:paymentId", a.secured(routeOpts{}, a.cancelPayment))
}

func (a *API) createConsent(ctx context.Context, c *call) (result, error) {
	in, err := decodeData[payment.ConsentInput](c.payload)
	if err != nil {
		return result{}, err
	}
	consent, err := a.deps.Payments.CreateConsent(ctx, in)
	if err != nil {
		return result{}, err
	}
	return result{http.StatusCreated, a.envelope(consent, consentsPath+consent.ConsentID)}, nil
}

func (a *API) getConsent(ctx context.Context, c *call) (result, error) {
	consent, err := a.deps.Payments.GetConsent(ctx, c.param("consentId"))
	if err != nil {
		return result{}, err
	}
	return result{http.StatusOK, a.envelope(consent, consentsPath+consent.ConsentID)}, nil
}

// initiatePayment consumes the consent named in the token scope.
func (a *API) initiatePayment(ctx context.Context, c *call) (result, error) {
	consentID, ok := auth.ConsentIDFromScope(c.token.Scope, a.cfg.ConsentIDPrefix)
	if !ok {
		return result{}, auth.ErrUnauthorized
	}
	in, err := decodeData[payment.InitiationInput](c.payload)
	if err != nil {
		return result{}, err
	}
	p, err := a.deps.Payments.Initiate(ctx, consentID, in)
	if err != nil {
		return result{}, err
	}
	return result{http.StatusCreated, a.envelope(p, paymentsPath+p.PaymentID)}, nil
}

func (a *API) getPayment(ctx context.Context, c *call) (result, error) {
	p, err := a.deps.Payments.GetPayment(ctx, c.param("paymentId"))
	if err != nil {
		return result{}, err
	}
	return result{http.StatusOK, a.envelope(p, paymentsPath+p.PaymentID)}, nil
}

func (a *API) cancelPayment(ctx context.Context, c *call) (result, error) {
	in, err := decodeData[payment.CancelInput](c.payload)
	if err != nil {
		return result{}, err
	}
	p, err := a.deps.Payments.Cancel(ctx, c.param("paymentId"), in)
	if err != nil {
		return result{}, err
	}
	return result{http.StatusOK, a.envelope(p, paymentsPath+p.PaymentID)}, nil
}
