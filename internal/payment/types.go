package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/openfinance-sandbox/fapigw/internal/model"
	"github.com/openfinance-sandbox/fapigw/internal/store"
)

type ConsentStatus string

const (
	ConsentAwaitingAuthorisation ConsentStatus = "AWAITING_AUTHORISATION"
	ConsentConsumed              ConsentStatus = "CONSUMED"
)

type Status string

const (
	StatusReceived  Status = "RCVD"
	StatusCancelled Status = "CANC"
)

const (
	// CancellationReasonScheduled is the only reason an initiator PATCH records.
	CancellationReasonScheduled = "CANCELADO_AGENDAMENTO"

	consentValidity = 5 * time.Minute
)

// DebtorAccount is attached to every initiation; account selection is not
// part of this gateway.
var DebtorAccount = model.Account{
	ISPB:        "12345678",
	Issuer:      "1774",
	Number:      "1234567890",
	AccountType: "CACC",
}

type Creditor struct {
	PersonType string `json:"personType"`
	CpfCnpj    string `json:"cpfCnpj"`
	Name       string `json:"name"`
}

type PaymentDetails struct {
	LocalInstrument string         `json:"localInstrument"`
	QRCode          string         `json:"qrCode,omitempty"`
	Proxy           string         `json:"proxy,omitempty"`
	CreditorAccount *model.Account `json:"creditorAccount,omitempty"`
}

// ConsentPayment describes the payment a consent allows.
type ConsentPayment struct {
	Type         string         `json:"type"`
	Date         string         `json:"date,omitempty"`
	Currency     string         `json:"currency"`
	Amount       string         `json:"amount"`
	IBGETownCode string         `json:"ibgeTownCode,omitempty"`
	Details      PaymentDetails `json:"details"`
}

// Consent authorises one future payment.
type Consent struct {
	ConsentID            string                `json:"consentId"`
	Status               ConsentStatus         `json:"status"`
	CreationDateTime     time.Time             `json:"creationDateTime"`
	ExpirationDateTime   time.Time             `json:"expirationDateTime"`
	StatusUpdateDateTime time.Time             `json:"statusUpdateDateTime"`
	LoggedUser           model.LoggedUser      `json:"loggedUser"`
	BusinessEntity       *model.BusinessEntity `json:"businessEntity,omitempty"`
	Creditor             Creditor              `json:"creditor"`
	Payment              ConsentPayment        `json:"payment"`
	DebtorAccount        *model.Account        `json:"debtorAccount,omitempty"`
}

type ConsentInput struct {
	LoggedUser     model.LoggedUser      `json:"loggedUser"`
	BusinessEntity *model.BusinessEntity `json:"businessEntity,omitempty"`
	Creditor       Creditor              `json:"creditor"`
	Payment        ConsentPayment        `json:"payment"`
	DebtorAccount  *model.Account        `json:"debtorAccount,omitempty"`
}

type Amount struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type Cancellation struct {
	Reason        string            `json:"reason"`
	CancelledFrom string            `json:"cancelledFrom"`
	CancelledAt   time.Time         `json:"cancelledAt"`
	CancelledBy   model.CancelledBy `json:"cancelledBy"`
}

// Initiation is a PIX payment instructed under a consent.
type Initiation struct {
	PaymentID                 string        `json:"paymentId"`
	ConsentID                 string        `json:"consentId"`
	EndToEndID                string        `json:"endToEndId,omitempty"`
	Status                    Status        `json:"status"`
	CreationDateTime          time.Time     `json:"creationDateTime"`
	StatusUpdateDateTime      time.Time     `json:"statusUpdateDateTime"`
	LocalInstrument           string        `json:"localInstrument"`
	Payment                   Amount        `json:"payment"`
	CreditorAccount           model.Account `json:"creditorAccount"`
	DebtorAccount             model.Account `json:"debtorAccount"`
	RemittanceInformation     string        `json:"remittanceInformation,omitempty"`
	QRCode                    string        `json:"qrCode,omitempty"`
	Proxy                     string        `json:"proxy,omitempty"`
	CNPJInitiator             string        `json:"cnpjInitiator"`
	TransactionIdentification string        `json:"transactionIdentification,omitempty"`
	IBGETownCode              string        `json:"ibgeTownCode,omitempty"`
	AuthorisationFlow         string        `json:"authorisationFlow,omitempty"`
	Cancellation              *Cancellation `json:"cancellation,omitempty"`
}

type InitiationInput struct {
	EndToEndID                string        `json:"endToEndId,omitempty"`
	LocalInstrument           string        `json:"localInstrument"`
	Payment                   Amount        `json:"payment"`
	CreditorAccount           model.Account `json:"creditorAccount"`
	RemittanceInformation     string        `json:"remittanceInformation,omitempty"`
	QRCode                    string        `json:"qrCode,omitempty"`
	Proxy                     string        `json:"proxy,omitempty"`
	CNPJInitiator             string        `json:"cnpjInitiator"`
	TransactionIdentification string        `json:"transactionIdentification,omitempty"`
	IBGETownCode              string        `json:"ibgeTownCode,omitempty"`
	AuthorisationFlow         string        `json:"authorisationFlow,omitempty"`
}

// CancelInput is the body of a payment PATCH.
type CancelInput struct {
	Status       Status `json:"status"`
	Cancellation struct {
		CancelledBy model.CancelledBy `json:"cancelledBy"`
	} `json:"cancellation"`
}

var (
	// ErrConsentNotAwaiting means the consent was already consumed.
	ErrConsentNotAwaiting = fmt.Errorf("payment: consent is not awaiting authorisation: %w", store.ErrConflict)
	// ErrAlreadyCancelled is returned for a second cancellation.
	ErrAlreadyCancelled = fmt.Errorf("payment: already cancelled: %w", store.ErrConflict)
	ErrInvalidInput     = errors.New("payment: invalid input")
)
