package fido

import (
	"context"

	"github.com/openfinance-sandbox/fapigw/internal/upstream"
)

// Endpoints are the four FIDO server operations.
type Endpoints struct {
	RegistrationOptions string
	Registration        string
	SignOptions         string
	Sign                string
}

// Client calls the FIDO server over JSON.
type Client struct {
	http      *upstream.Client
	endpoints Endpoints
}

func NewClient(hc *upstream.Client, endpoints Endpoints) *Client {
	return &Client{http: hc, endpoints: endpoints}
}

func (c *Client) RegistrationOptions(ctx context.Context, req OptionsRequest) (RegistrationOptions, error) {
	var out RegistrationOptions
	if err := c.http.PostJSON(ctx, "registration-options", c.endpoints.RegistrationOptions, req, &out); err != nil {
		return RegistrationOptions{}, err
	}
	return out, nil
}

func (c *Client) Register(ctx context.Context, req RegistrationRequest) error {
	return c.http.PostJSON(ctx, "registration", c.endpoints.Registration, req, nil)
}

func (c *Client) SignOptions(ctx context.Context, req OptionsRequest) (SignOptions, error) {
	var out SignOptions
	if err := c.http.PostJSON(ctx, "sign-options", c.endpoints.SignOptions, req, &out); err != nil {
		return SignOptions{}, err
	}
	return out, nil
}

func (c *Client) Sign(ctx context.Context, req SignRequest) error {
	return c.http.PostJSON(ctx, "sign", c.endpoints.Sign, req, nil)
}
