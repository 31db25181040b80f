// Package model holds the wire shapes shared by enrollment and payment
// resources.
package model

import "time"

const (
	// CancelledFromInitiator marks a cancellation requested by the
	// payment initiator.
	CancelledFromInitiator = "INICIADORA"
)

// Document identifies a person (CPF) or business (CNPJ).
type Document struct {
	Identification string `json:"identification"`
	Rel            string `json:"rel"`
}

type LoggedUser struct {
	Document Document `json:"document"`
}

type BusinessEntity struct {
	Document Document `json:"document"`
}

// Account is a Brazilian instant-payment account reference.
type Account struct {
	ISPB        string `json:"ispb"`
	Issuer      string `json:"issuer,omitempty"`
	Number      string `json:"number"`
	AccountType string `json:"accountType"`
}

type CancelledBy struct {
	Document Document `json:"document"`
}

// Links points at the resource itself.
type Links struct {
	Self string `json:"self"`
}

type Meta struct {
	RequestDateTime time.Time `json:"requestDateTime"`
}

// Envelope is the signed response body shape.
type Envelope struct {
	Data  any    `json:"data"`
	Links *Links `json:"links,omitempty"`
	Meta  Meta   `json:"meta"`
}

// NewEnvelope stamps meta.requestDateTime with now.
func NewEnvelope(data any, self string, now time.Time) Envelope {
	env := Envelope{Data: data, Meta: Meta{RequestDateTime: now.UTC()}}
	if self != "" {
		env.Links = &Links{Self: self}
	}
	return env
}
