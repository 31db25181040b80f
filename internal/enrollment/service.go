// Package enrollment runs the device enrollment state machine:
//
//	(none) -> AWAITING_RISK_SIGNALS -> AWAITING_ACCOUNT_HOLDER_VALIDATION -> AUTHORISED
//	any non-terminal status -> REVOKED
package enrollment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openfinance-sandbox/fapigw/internal/audit"
	"github.com/openfinance-sandbox/fapigw/internal/fido"
	"github.com/openfinance-sandbox/fapigw/internal/ids"
	"github.com/openfinance-sandbox/fapigw/internal/model"
	"github.com/openfinance-sandbox/fapigw/internal/obs"
	"github.com/openfinance-sandbox/fapigw/internal/store"
)

// Fido is the FIDO server as seen by enrollments.
type Fido interface {
	RegistrationOptions(ctx context.Context, req fido.OptionsRequest) (fido.RegistrationOptions, error)
	Register(ctx context.Context, req fido.RegistrationRequest) error
	SignOptions(ctx context.Context, req fido.OptionsRequest) (fido.SignOptions, error)
	Sign(ctx context.Context, req fido.SignRequest) error
}

// ConsentChecker confirms a payment consent is still waiting for
// authorisation (store.ErrNotFound or store.ErrConflict otherwise).
type ConsentChecker interface {
	CheckAwaitingAuthorisation(ctx context.Context, consentID string) error
}

// Service owns enrollment resources.
type Service struct {
	store    store.Store[Enrollment]
	locks    *store.Locker
	fido     Fido
	consents ConsentChecker
	idPrefix string
	now      func() time.Time
}

type Option func(*Service)

// WithIDPrefix sets the prefix of generated enrollment ids.
func WithIDPrefix(prefix string) Option {
	return func(s *Service) { s.idPrefix = prefix }
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(st store.Store[Enrollment], f Fido, consents ConsentChecker, opts ...Option) *Service {
	s := &Service{
		store:    st,
		locks:    store.NewLocker(),
		fido:     f,
		consents: consents,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new enrollment in AWAITING_RISK_SIGNALS.
func (s *Service) Create(ctx context.Context, in CreateInput) (Enrollment, error) {
	if strings.TrimSpace(in.LoggedUser.Document.Identification) == "" {
		return Enrollment{}, fmt.Errorf("%w: loggedUser.document.identification is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	e := Enrollment{
		EnrollmentID:         ids.Prefixed(s.idPrefix),
		Status:               StatusAwaitingRiskSignals,
		CreationDateTime:     now,
		StatusUpdateDateTime: now,
		LoggedUser:           in.LoggedUser,
		BusinessEntity:       in.BusinessEntity,
		DebtorAccount:        in.DebtorAccount,
		EnrollmentName:       in.EnrollmentName,
	}
	if err := s.store.Insert(ctx, e.EnrollmentID, e); err != nil {
		return Enrollment{}, err
	}
	s.recordTransition(ctx, e.EnrollmentID, "", e.Status)
	return e, nil
}

func (s *Service) Get(ctx context.Context, id string) (Enrollment, error) {
	return s.store.Get(ctx, id)
}

// SubmitRiskSignals moves AWAITING_RISK_SIGNALS to
// AWAITING_ACCOUNT_HOLDER_VALIDATION.
func (s *Service) SubmitRiskSignals(ctx context.Context, id string, signals RiskSignals) error {
	if strings.TrimSpace(signals.DeviceID) == "" {
		return fmt.Errorf("%w: deviceId is required", ErrInvalidInput)
	}
	_, err := s.transition(ctx, id, StatusAwaitingAccountHolderValidation, func(cur Enrollment) error {
		if cur.Status != StatusAwaitingRiskSignals {
			return ErrInvalidTransition
		}
		return nil
	}, nil)
	if err == nil {
		_ = audit.LogEvent(ctx, "enrollment.risk_signals", map[string]any{
			"enrollment_id": id,
			"device_id":     signals.DeviceID,
			"rooted":        signals.IsRootedDevice,
		})
	}
	return err
}

// RegistrationOptions asks the FIDO server for credential creation
// options. The enrollment status is left unchanged.
func (s *Service) RegistrationOptions(ctx context.Context, id string, rp RelyingParty, platform Platform) (fido.RegistrationOptions, error) {
	if !platform.Valid() {
		return fido.RegistrationOptions{}, fmt.Errorf("%w: unknown platform %q", ErrInvalidInput, platform)
	}
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return fido.RegistrationOptions{}, err
	}
	if e.Status != StatusAwaitingAccountHolderValidation {
		return fido.RegistrationOptions{}, ErrInvalidTransition
	}
	return s.fido.RegistrationOptions(ctx, optionsRequest(id, rp, platform))
}

// CompleteRegistration submits the attestation and, once the FIDO server
// accepts it, authorises the enrollment. A rejected attestation leaves the
// enrollment untouched.
func (s *Service) CompleteRegistration(ctx context.Context, id string, req fido.RegistrationRequest) error {
	req.EnrollmentID = id
	_, err := s.transition(ctx, id, StatusAuthorised, func(cur Enrollment) error {
		if cur.Status != StatusAwaitingAccountHolderValidation {
			return ErrInvalidTransition
		}
		return s.fido.Register(ctx, req)
	}, nil)
	return err
}

// SignOptions asks the FIDO server for an assertion challenge. Only an
// authorised enrollment can sign.
func (s *Service) SignOptions(ctx context.Context, id string, rp RelyingParty, platform Platform) (fido.SignOptions, error) {
	if !platform.Valid() {
		return fido.SignOptions{}, fmt.Errorf("%w: unknown platform %q", ErrInvalidInput, platform)
	}
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return fido.SignOptions{}, err
	}
	if e.Status != StatusAuthorised {
		return fido.SignOptions{}, ErrInvalidTransition
	}
	return s.fido.SignOptions(ctx, optionsRequest(id, rp, platform))
}

// Revoke cancels a non-terminal enrollment.
func (s *Service) Revoke(ctx context.Context, id string, in CancelInput) (Enrollment, error) {
	if in.Reason.RejectionReason == "" && in.Reason.RevocationReason == "" {
		return Enrollment{}, fmt.Errorf("%w: cancellation reason is required", ErrInvalidInput)
	}
	return s.transition(ctx, id, StatusRevoked, func(cur Enrollment) error {
		if cur.Status.Terminal() {
			return ErrInvalidTransition
		}
		return nil
	}, func(e *Enrollment, now time.Time) {
		e.Cancellation = &Cancellation{
			Reason:                in.Reason,
			CancelledFrom:         model.CancelledFromInitiator,
			CancelledAt:           now,
			CancelledBy:           in.CancelledBy,
			AdditionalInformation: in.AdditionalInformation,
		}
	})
}

// AuthoriseConsent checks a FIDO assertion made with an authorised
// enrollment against a consent that awaits authorisation. It records the
// outcome but changes neither the enrollment nor the consent.
// TODO: move the consent to an authorised status once the payment flow
// defines one; initiation currently consumes AWAITING_AUTHORISATION consents.
func (s *Service) AuthoriseConsent(ctx context.Context, consentID, enrollmentID string, assertion fido.Assertion) error {
	if strings.TrimSpace(enrollmentID) == "" {
		return fmt.Errorf("%w: enrollmentId is required", ErrInvalidInput)
	}
	if err := s.consents.CheckAwaitingAuthorisation(ctx, consentID); err != nil {
		return err
	}
	e, err := s.store.Get(ctx, enrollmentID)
	if err != nil {
		return err
	}
	if e.Status != StatusAuthorised {
		return ErrInvalidTransition
	}
	if err := s.fido.Sign(ctx, fido.SignRequest{Assertion: assertion, EnrollmentID: enrollmentID}); err != nil {
		return err
	}
	return audit.LogEvent(ctx, "consent.authorisation_verified", map[string]any{
		"consent_id":    consentID,
		"enrollment_id": enrollmentID,
	})
}

// transition runs check and the status change under the enrollment's lock.
func (s *Service) transition(ctx context.Context, id string, to Status, check func(Enrollment) error, mutate func(*Enrollment, time.Time)) (Enrollment, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return Enrollment{}, err
	}
	if err := check(cur); err != nil {
		return Enrollment{}, err
	}
	if err := ctx.Err(); err != nil {
		return Enrollment{}, err
	}

	next := cur
	now := s.now().UTC()
	next.Status = to
	next.StatusUpdateDateTime = now
	if mutate != nil {
		mutate(&next, now)
	}
	from := cur.Status
	if err := s.store.CompareAndSwap(ctx, id, func(e Enrollment) bool { return e.Status == from }, next); err != nil {
		return Enrollment{}, err
	}
	s.recordTransition(ctx, id, from, to)
	return next, nil
}

func (s *Service) recordTransition(ctx context.Context, id string, from, to Status) {
	obs.RecordTransition("enrollment", string(from), string(to))
	if err := audit.LogEvent(ctx, "enrollment.status_changed", map[string]any{
		"enrollment_id": id,
		"from":          string(from),
		"to":            string(to),
	}); err != nil {
		obs.Logger().WithError(err).WithFields(logrus.Fields{"enrollment_id": id}).Error("audit failed")
	}
}

func optionsRequest(id string, rp RelyingParty, platform Platform) fido.OptionsRequest {
	return fido.OptionsRequest{
		RPID:         rp.ID,
		RPName:       rp.Name,
		Platform:     string(platform),
		EnrollmentID: id,
	}
}
