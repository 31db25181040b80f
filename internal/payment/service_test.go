package payment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfinance-sandbox/fapigw/internal/model"
	"github.com/openfinance-sandbox/fapigw/internal/store"
)

var (
	consentInput = ConsentInput{
		LoggedUser: model.LoggedUser{Document: model.Document{Identification: "11111111111", Rel: "CPF"}},
		Creditor:   Creditor{PersonType: "PESSOA_NATURAL", CpfCnpj: "22222222222", Name: "Maria Silva"},
		Payment: ConsentPayment{
			Type: "PIX", Currency: "BRL", Amount: "100.00",
			Details: PaymentDetails{LocalInstrument: "DICT", Proxy: "maria@example.com"},
		},
	}
	initiationInput = InitiationInput{
		LocalInstrument: "DICT",
		Payment:         Amount{Amount: "100.00", Currency: "BRL"},
		CreditorAccount: model.Account{ISPB: "99999004", Issuer: "0001", Number: "12345678", AccountType: "CACC"},
		CNPJInitiator:   "50685362000135",
		Proxy:           "maria@example.com",
	}
)

// countingPayments records how many initiations were stored.
type countingPayments struct {
	*store.Memory[Initiation]
	inserted atomic.Int32
}

func (p *countingPayments) Insert(ctx context.Context, id string, v Initiation) error {
	if err := p.Memory.Insert(ctx, id, v); err != nil {
		return err
	}
	p.inserted.Add(1)
	return nil
}

func (p *countingPayments) Len() int { return int(p.inserted.Load()) }

func newService() (*Service, *store.Memory[Consent], *countingPayments) {
	consents := store.NewMemory[Consent]()
	payments := &countingPayments{Memory: store.NewMemory[Initiation]()}
	return NewService(consents, payments, WithConsentPrefix("urn:bank:")), consents, payments
}

func TestCreateConsent(t *testing.T) {
	s, _, _ := newService()
	c, err := s.CreateConsent(context.Background(), consentInput)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(c.ConsentID, "urn:bank:"))
	assert.Equal(t, ConsentAwaitingAuthorisation, c.Status)
	assert.Equal(t, "Maria Silva", c.Creditor.Name)
	assert.True(t, c.ExpirationDateTime.After(c.CreationDateTime))

	require.NoError(t, s.CheckAwaitingAuthorisation(context.Background(), c.ConsentID))
	assert.ErrorIs(t, s.CheckAwaitingAuthorisation(context.Background(), "urn:bank:nope"), store.ErrNotFound)

	_, err = s.CreateConsent(context.Background(), ConsentInput{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestInitiateConsumesConsent(t *testing.T) {
	ctx := context.Background()
	s, _, payments := newService()
	c, err := s.CreateConsent(ctx, consentInput)
	require.NoError(t, err)

	p, err := s.Initiate(ctx, c.ConsentID, initiationInput)
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, p.Status)
	assert.Equal(t, c.ConsentID, p.ConsentID)
	assert.Equal(t, DebtorAccount, p.DebtorAccount)
	assert.Equal(t, 1, payments.Len())

	got, err := s.GetConsent(ctx, c.ConsentID)
	require.NoError(t, err)
	assert.Equal(t, ConsentConsumed, got.Status)
	assert.ErrorIs(t, s.CheckAwaitingAuthorisation(ctx, c.ConsentID), ErrConsentNotAwaiting)

	_, err = s.Initiate(ctx, c.ConsentID, initiationInput)
	assert.ErrorIs(t, err, ErrConsentNotAwaiting)
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, 1, payments.Len())
}

func TestInitiateUnknownConsent(t *testing.T) {
	s, _, _ := newService()
	_, err := s.Initiate(context.Background(), "urn:bank:missing", initiationInput)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConcurrentInitiationSingleWinner(t *testing.T) {
	ctx := context.Background()
	s, _, payments := newService()
	c, err := s.CreateConsent(ctx, consentInput)
	require.NoError(t, err)

	const n = 50
	errs := make([]error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = s.Initiate(ctx, c.ConsentID, initiationInput)
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, store.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)
	assert.Equal(t, 1, payments.Len())
}

type failingPayments struct {
	*store.Memory[Initiation]
}

func (failingPayments) Insert(context.Context, string, Initiation) error {
	return errors.New("disk full")
}

func TestInitiateRollsBackConsentWhenPaymentInsertFails(t *testing.T) {
	ctx := context.Background()
	consents := store.NewMemory[Consent]()
	s := NewService(consents, failingPayments{store.NewMemory[Initiation]()}, WithConsentPrefix("urn:bank:"))
	c, err := s.CreateConsent(ctx, consentInput)
	require.NoError(t, err)

	_, err = s.Initiate(ctx, c.ConsentID, initiationInput)
	require.Error(t, err)

	got, err := consents.Get(ctx, c.ConsentID)
	require.NoError(t, err)
	assert.Equal(t, ConsentAwaitingAuthorisation, got.Status)
	assert.Equal(t, c, got)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newService()
	c, err := s.CreateConsent(ctx, consentInput)
	require.NoError(t, err)
	p, err := s.Initiate(ctx, c.ConsentID, initiationInput)
	require.NoError(t, err)

	var in CancelInput
	in.Status = StatusCancelled
	in.Cancellation.CancelledBy = model.CancelledBy{Document: model.Document{Identification: "11111111111", Rel: "CPF"}}

	got, err := s.Cancel(ctx, p.PaymentID, in)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	require.NotNil(t, got.Cancellation)
	assert.Equal(t, CancellationReasonScheduled, got.Cancellation.Reason)
	assert.Equal(t, model.CancelledFromInitiator, got.Cancellation.CancelledFrom)
	assert.Equal(t, "11111111111", got.Cancellation.CancelledBy.Document.Identification)
	assert.True(t, got.StatusUpdateDateTime.After(p.StatusUpdateDateTime) || got.StatusUpdateDateTime.Equal(p.StatusUpdateDateTime))

	_, err = s.Cancel(ctx, p.PaymentID, in)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.Cancel(ctx, "missing", in)
	assert.ErrorIs(t, err, store.ErrNotFound)

	in.Status = StatusReceived
	_, err = s.Cancel(ctx, p.PaymentID, in)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
