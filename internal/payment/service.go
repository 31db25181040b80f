// Package payment holds payment consents and the PIX initiations that
// consume them.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openfinance-sandbox/fapigw/internal/audit"
	"github.com/openfinance-sandbox/fapigw/internal/ids"
	"github.com/openfinance-sandbox/fapigw/internal/model"
	"github.com/openfinance-sandbox/fapigw/internal/obs"
	"github.com/openfinance-sandbox/fapigw/internal/store"
)

// Service owns consents and initiations.
type Service struct {
	consents      store.Store[Consent]
	payments      store.Store[Initiation]
	locks         *store.Locker
	consentPrefix string
	now           func() time.Time
}

type Option func(*Service)

// WithConsentPrefix sets the prefix of generated consent ids.
func WithConsentPrefix(prefix string) Option {
	return func(s *Service) { s.consentPrefix = prefix }
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(consents store.Store[Consent], payments store.Store[Initiation], opts ...Option) *Service {
	s := &Service{
		consents: consents,
		payments: payments,
		locks:    store.NewLocker(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateConsent stores a consent in AWAITING_AUTHORISATION.
func (s *Service) CreateConsent(ctx context.Context, in ConsentInput) (Consent, error) {
	switch {
	case strings.TrimSpace(in.LoggedUser.Document.Identification) == "":
		return Consent{}, fmt.Errorf("%w: loggedUser.document.identification is required", ErrInvalidInput)
	case strings.TrimSpace(in.Creditor.Name) == "":
		return Consent{}, fmt.Errorf("%w: creditor.name is required", ErrInvalidInput)
	case strings.TrimSpace(in.Payment.Amount) == "" || strings.TrimSpace(in.Payment.Currency) == "":
		return Consent{}, fmt.Errorf("%w: payment amount and currency are required", ErrInvalidInput)
	}
	now := s.now().UTC()
	c := Consent{
		ConsentID:            ids.Prefixed(s.consentPrefix),
		Status:               ConsentAwaitingAuthorisation,
		CreationDateTime:     now,
		ExpirationDateTime:   now.Add(consentValidity),
		StatusUpdateDateTime: now,
		LoggedUser:           in.LoggedUser,
		BusinessEntity:       in.BusinessEntity,
		Creditor:             in.Creditor,
		Payment:              in.Payment,
		DebtorAccount:        in.DebtorAccount,
	}
	if err := s.consents.Insert(ctx, c.ConsentID, c); err != nil {
		return Consent{}, err
	}
	s.recordTransition(ctx, "consent", c.ConsentID, "", string(c.Status))
	return c, nil
}

func (s *Service) GetConsent(ctx context.Context, id string) (Consent, error) {
	return s.consents.Get(ctx, id)
}

// CheckAwaitingAuthorisation returns store.ErrNotFound for unknown consents
// and ErrConsentNotAwaiting once consumed.
func (s *Service) CheckAwaitingAuthorisation(ctx context.Context, consentID string) error {
	c, err := s.consents.Get(ctx, consentID)
	if err != nil {
		return err
	}
	if c.Status != ConsentAwaitingAuthorisation {
		return ErrConsentNotAwaiting
	}
	return nil
}

// Initiate creates a RCVD payment and marks its consent CONSUMED as one
// step: both writes happen under the consent's lock, and the consent write
// is undone if the payment cannot be stored.
func (s *Service) Initiate(ctx context.Context, consentID string, in InitiationInput) (Initiation, error) {
	if strings.TrimSpace(in.Payment.Amount) == "" || strings.TrimSpace(in.Payment.Currency) == "" {
		return Initiation{}, fmt.Errorf("%w: payment amount and currency are required", ErrInvalidInput)
	}

	unlock := s.locks.Lock(consentID)
	defer unlock()

	consent, err := s.consents.Get(ctx, consentID)
	if err != nil {
		return Initiation{}, err
	}
	if consent.Status != ConsentAwaitingAuthorisation {
		return Initiation{}, ErrConsentNotAwaiting
	}
	if err := ctx.Err(); err != nil {
		return Initiation{}, err
	}

	now := s.now().UTC()
	p := Initiation{
		PaymentID:                 ids.New(),
		ConsentID:                 consentID,
		EndToEndID:                in.EndToEndID,
		Status:                    StatusReceived,
		CreationDateTime:          now,
		StatusUpdateDateTime:      now,
		LocalInstrument:           in.LocalInstrument,
		Payment:                   in.Payment,
		CreditorAccount:           in.CreditorAccount,
		DebtorAccount:             DebtorAccount,
		RemittanceInformation:     in.RemittanceInformation,
		QRCode:                    in.QRCode,
		Proxy:                     in.Proxy,
		CNPJInitiator:             in.CNPJInitiator,
		TransactionIdentification: in.TransactionIdentification,
		IBGETownCode:              in.IBGETownCode,
		AuthorisationFlow:         in.AuthorisationFlow,
	}

	consumed := consent
	consumed.Status = ConsentConsumed
	consumed.StatusUpdateDateTime = now
	awaiting := func(c Consent) bool { return c.Status == ConsentAwaitingAuthorisation }
	if err := s.consents.CompareAndSwap(ctx, consentID, awaiting, consumed); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return Initiation{}, ErrConsentNotAwaiting
		}
		return Initiation{}, err
	}
	if err := s.payments.Insert(ctx, p.PaymentID, p); err != nil {
		// Rollback ignores request cancellation.
		if rbErr := s.consents.CompareAndSwap(context.Background(), consentID, func(c Consent) bool { return c.Status == ConsentConsumed }, consent); rbErr != nil {
			obs.Logger().WithError(rbErr).WithField("consent_id", consentID).Error("consent rollback failed")
		}
		return Initiation{}, err
	}

	s.recordTransition(ctx, "consent", consentID, string(ConsentAwaitingAuthorisation), string(ConsentConsumed))
	s.recordTransition(ctx, "payment", p.PaymentID, "", string(p.Status))
	return p, nil
}

func (s *Service) GetPayment(ctx context.Context, id string) (Initiation, error) {
	return s.payments.Get(ctx, id)
}

// Cancel moves a RCVD payment to CANC. CANC never transitions back.
func (s *Service) Cancel(ctx context.Context, paymentID string, in CancelInput) (Initiation, error) {
	if in.Status != "" && in.Status != StatusCancelled {
		return Initiation{}, fmt.Errorf("%w: status must be %s", ErrInvalidInput, StatusCancelled)
	}
	if strings.TrimSpace(in.Cancellation.CancelledBy.Document.Identification) == "" {
		return Initiation{}, fmt.Errorf("%w: cancellation.cancelledBy is required", ErrInvalidInput)
	}

	unlock := s.locks.Lock(paymentID)
	defer unlock()

	cur, err := s.payments.Get(ctx, paymentID)
	if err != nil {
		return Initiation{}, err
	}
	if cur.Status == StatusCancelled {
		return Initiation{}, ErrAlreadyCancelled
	}

	now := s.now().UTC()
	next := cur
	next.Status = StatusCancelled
	next.StatusUpdateDateTime = now
	next.Cancellation = &Cancellation{
		Reason:        CancellationReasonScheduled,
		CancelledFrom: model.CancelledFromInitiator,
		CancelledAt:   now,
		CancelledBy:   in.Cancellation.CancelledBy,
	}
	if err := s.payments.CompareAndSwap(ctx, paymentID, func(p Initiation) bool { return p.Status == cur.Status }, next); err != nil {
		return Initiation{}, err
	}
	s.recordTransition(ctx, "payment", paymentID, string(cur.Status), string(next.Status))
	return next, nil
}

func (s *Service) recordTransition(ctx context.Context, resource, id, from, to string) {
	obs.RecordTransition(resource, from, to)
	if err := audit.LogEvent(ctx, resource+".status_changed", map[string]any{
		resource + "_id": id,
		"from":           from,
		"to":             to,
	}); err != nil {
		obs.Logger().WithError(err).WithFields(logrus.Fields{resource + "_id": id}).Error("audit failed")
	}
}
