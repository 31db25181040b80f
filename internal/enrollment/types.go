package enrollment

import (
	"errors"
	"fmt"
	"time"

	"github.com/openfinance-sandbox/fapigw/internal/model"
	"github.com/openfinance-sandbox/fapigw/internal/store"
)

// Status of a device enrollment.
type Status string

const (
	StatusAwaitingRiskSignals             Status = "AWAITING_RISK_SIGNALS"
	StatusAwaitingAccountHolderValidation Status = "AWAITING_ACCOUNT_HOLDER_VALIDATION"
	StatusAuthorised                      Status = "AUTHORISED"
	StatusRevoked                         Status = "REVOKED"
)

// Terminal reports whether no further transitions leave s.
func (s Status) Terminal() bool { return s == StatusRevoked }

// Platform of the authenticator the customer enrolls.
type Platform string

const (
	PlatformAndroid       Platform = "ANDROID"
	PlatformBrowser       Platform = "BROWSER"
	PlatformCrossPlatform Platform = "CROSS_PLATFORM"
	PlatformIOS           Platform = "IOS"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformAndroid, PlatformBrowser, PlatformCrossPlatform, PlatformIOS:
		return true
	}
	return false
}

// CancellationReason carries exactly one of the two reasons.
type CancellationReason struct {
	RejectionReason  string `json:"rejectionReason,omitempty"`
	RevocationReason string `json:"revocationReason,omitempty"`
}

type Cancellation struct {
	Reason                CancellationReason `json:"reason"`
	CancelledFrom         string             `json:"cancelledFrom"`
	CancelledAt           time.Time          `json:"cancelledAt"`
	CancelledBy           *model.CancelledBy `json:"cancelledBy,omitempty"`
	AdditionalInformation string             `json:"additionalInformation,omitempty"`
}

// Enrollment binds a customer's authenticator to a client.
type Enrollment struct {
	EnrollmentID         string                `json:"enrollmentId"`
	Status               Status                `json:"status"`
	CreationDateTime     time.Time             `json:"creationDateTime"`
	StatusUpdateDateTime time.Time             `json:"statusUpdateDateTime"`
	LoggedUser           model.LoggedUser      `json:"loggedUser"`
	BusinessEntity       *model.BusinessEntity `json:"businessEntity,omitempty"`
	DebtorAccount        *model.Account        `json:"debtorAccount,omitempty"`
	EnrollmentName       string                `json:"enrollmentName,omitempty"`
	Cancellation         *Cancellation         `json:"cancellation,omitempty"`
}

// CreateInput is the client-supplied part of a new enrollment.
type CreateInput struct {
	LoggedUser     model.LoggedUser      `json:"loggedUser"`
	BusinessEntity *model.BusinessEntity `json:"businessEntity,omitempty"`
	DebtorAccount  *model.Account        `json:"debtorAccount,omitempty"`
	EnrollmentName string                `json:"enrollmentName,omitempty"`
}

// CancelInput is the body of an enrollment PATCH.
type CancelInput struct {
	Reason                CancellationReason `json:"reason"`
	CancelledBy           *model.CancelledBy `json:"cancelledBy,omitempty"`
	AdditionalInformation string             `json:"additionalInformation,omitempty"`
}

// RiskSignals are device attributes collected before registration.
type RiskSignals struct {
	DeviceID             string `json:"deviceId"`
	IsRootedDevice       bool   `json:"isRootedDevice"`
	ScreenBrightness     int    `json:"screenBrightness,omitempty"`
	ElapsedTimeSinceBoot int64  `json:"elapsedTimeSinceBoot,omitempty"`
	OSVersion            string `json:"osVersion,omitempty"`
	UserTimeZoneOffset   string `json:"userTimeZoneOffset,omitempty"`
	Language             string `json:"language,omitempty"`
	AccountTenure        string `json:"accountTenure,omitempty"`
}

// RelyingParty identifies the client towards the FIDO server.
type RelyingParty struct {
	// ID is the client certificate's subject CN.
	ID string
	// Name is the client's registered display name.
	Name string
}

var (
	// ErrInvalidTransition is returned when the current status does not
	// allow the requested operation.
	ErrInvalidTransition = fmt.Errorf("enrollment: invalid status transition: %w", store.ErrConflict)
	ErrInvalidInput      = errors.New("enrollment: invalid input")
)
