package topup_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/risapp/ris-api/internal/domain/settlement"
	"github.com/risapp/ris-api/internal/domain/topup"
	"github.com/risapp/ris-api/internal/pkg/imaging"
	"github.com/risapp/ris-api/internal/pkg/mercadopago"
	"github.com/risapp/ris-api/internal/pkg/storage"
)

// fakeStore is a mutex-guarded in-memory settlement.Store.
type fakeStore struct {
	mu  sync.Mutex
	txs map[uuid.UUID]*settlement.Transaction
}

func newFakeStore() *fakeStore {
	return &fakeStore{txs: make(map[uuid.UUID]*settlement.Transaction)}
}

func (s *fakeStore) CreateTransaction(ctx context.Context, tx *settlement.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tx
	cp.CreatedAt = time.Now()
	s.txs[tx.ID] = &cp
	return nil
}

func (s *fakeStore) ConditionalTransition(ctx context.Context, id uuid.UUID, expected, next settlement.Status, mut settlement.Mutation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok || tx.Status != expected {
		return false, nil
	}
	tx.Status = next
	if mut.EvidenceKey != nil {
		tx.EvidenceKey = *mut.EvidenceKey
	}
	if mut.ProcessedVia != nil {
		tx.ProcessedVia = *mut.ProcessedVia
	}
	if mut.ProcessedBy != nil {
		tx.ProcessedBy = mut.ProcessedBy
	}
	if mut.TerminalReason != nil {
		tx.TerminalReason = *mut.TerminalReason
	}
	if mut.CompletedAt != nil {
		tx.CompletedAt = mut.CompletedAt
	}
	return true, nil
}

func (s *fakeStore) GetTransaction(ctx context.Context, id uuid.UUID) (*settlement.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return nil, settlement.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *fakeStore) FindPendingByExternalRef(ctx context.Context, ref string) (*settlement.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.txs {
		if tx.ExternalRef == ref && !tx.Status.Terminal() {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, settlement.ErrNotFound
}

func (s *fakeStore) FindPendingTopupByAmount(ctx context.Context, accountID uuid.UUID, amountIn int64) (*settlement.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.txs {
		if tx.AccountID == accountID && tx.Kind == settlement.KindTopup && tx.AmountIn == amountIn && !tx.Status.Terminal() {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) LatestPending(ctx context.Context, kind settlement.Kind) (*settlement.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *settlement.Transaction
	for _, tx := range s.txs {
		if tx.Kind == kind && tx.Status == settlement.StatusPending {
			if latest == nil || tx.CreatedAt.After(latest.CreatedAt) {
				latest = tx
			}
		}
	}
	if latest == nil {
		return nil, settlement.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *fakeStore) ListByAccount(ctx context.Context, accountID uuid.UUID, kind settlement.Kind) ([]settlement.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []settlement.Transaction
	for _, tx := range s.txs {
		if tx.AccountID == accountID && (kind == "" || tx.Kind == kind) {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (s *fakeStore) ListByStatus(ctx context.Context, kind settlement.Kind, statuses ...settlement.Status) ([]settlement.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []settlement.Transaction
	for _, tx := range s.txs {
		if tx.Kind != kind {
			continue
		}
		for _, st := range statuses {
			if tx.Status == st {
				out = append(out, *tx)
			}
		}
	}
	return out, nil
}

type fakeBalances struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int64
}

func (b *fakeBalances) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.balances == nil {
		b.balances = make(map[uuid.UUID]int64)
	}
	if b.balances[accountID]+delta < 0 {
		return settlement.ErrInsufficientBalance
	}
	b.balances[accountID] += delta
	return nil
}

func (b *fakeBalances) get(accountID uuid.UUID) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[accountID]
}

// fakeProvider simulates Mercado Pago payment state.
type fakeProvider struct {
	mu       sync.Mutex
	payments map[int64]*mercadopago.PaymentStatus
	nextID   int64
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{payments: make(map[int64]*mercadopago.PaymentStatus), nextID: 1000}
}

func (p *fakeProvider) CreatePixPayment(ctx context.Context, req mercadopago.CreatePixRequest) (*mercadopago.PixPayment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.payments[p.nextID] = &mercadopago.PaymentStatus{
		PaymentID:         p.nextID,
		Status:            mercadopago.StatusPending,
		ExternalReference: req.ExternalReference,
	}
	return &mercadopago.PixPayment{
		PaymentID:         p.nextID,
		Status:            mercadopago.StatusPending,
		QRCode:            "qr-payload",
		QRCodeBase64:      "cXI=",
		ExternalReference: req.ExternalReference,
	}, nil
}

func (p *fakeProvider) GetPayment(ctx context.Context, paymentID int64) (*mercadopago.PaymentStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	status, ok := p.payments[paymentID]
	if !ok {
		return nil, fmt.Errorf("payment %d not found", paymentID)
	}
	cp := *status
	return &cp, nil
}

func (p *fakeProvider) approve(paymentID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments[paymentID].Status = mercadopago.StatusApproved
}

type fixture struct {
	router   chi.Router
	store    *fakeStore
	balances *fakeBalances
	provider *fakeProvider
	account  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newFakeStore()
	balances := &fakeBalances{}
	provider := newFakeProvider()

	st, err := storage.NewLocalStorage(t.TempDir(), "http://localhost/evidence")
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	processor := imaging.NewProcessor(imaging.DefaultConfig())

	engine := settlement.NewEngine(
		settlement.Config{MinTopupAmount: 1000, MaxTopupAmount: 200000},
		store, balances, nil,
		topup.IntentCreator{Provider: provider, PixExpiration: 30 * time.Minute},
		nil,
	)
	svc := topup.NewService(engine, store, provider, st, processor, 30*time.Minute)
	h := topup.NewHandler(svc, nil)

	r := chi.NewRouter()
	r.Post("/webhooks/mercadopago", h.Webhook)

	return &fixture{
		router:   r,
		store:    store,
		balances: balances,
		provider: provider,
		account:  uuid.New(),
	}
}

func (f *fixture) paymentID(t *testing.T, tx *settlement.Transaction) int64 {
	t.Helper()
	id, err := strconv.ParseInt(tx.ExternalRef, 10, 64)
	if err != nil {
		t.Fatalf("external_ref %q: %v", tx.ExternalRef, err)
	}
	return id
}

func (f *fixture) createTopup(t *testing.T, amount int64) *settlement.Transaction {
	t.Helper()
	tx := &settlement.Transaction{
		ID:        uuid.New(),
		AccountID: f.account,
		Kind:      settlement.KindTopup,
		Status:    settlement.StatusPending,
		AmountIn:  amount,
		AmountOut: amount,
	}
	pix, err := f.provider.CreatePixPayment(context.Background(), mercadopago.CreatePixRequest{
		AmountCents:       amount,
		ExternalReference: tx.ID.String(),
	})
	if err != nil {
		t.Fatalf("fake pix: %v", err)
	}
	tx.ExternalRef = fmt.Sprintf("%d", pix.PaymentID)
	if err := f.store.CreateTransaction(context.Background(), tx); err != nil {
		t.Fatalf("seed tx: %v", err)
	}
	return tx
}

func (f *fixture) postWebhook(t *testing.T, paymentID int64) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]interface{}{
		"type":   "payment",
		"action": "payment.updated",
		"data":   map[string]interface{}{"id": paymentID},
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/mercadopago", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestWebhookConfirmsAndReplays(t *testing.T) {
	f := newFixture(t)
	tx := f.createTopup(t, 5000)
	paymentID := f.paymentID(t, tx)

	f.provider.approve(paymentID)

	rec := f.postWebhook(t, paymentID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if got := f.balances.get(f.account); got != 5000 {
		t.Fatalf("expected credit of 5000, got %d", got)
	}
	stored, _ := f.store.GetTransaction(context.Background(), tx.ID)
	if stored.Status != settlement.StatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}

	// Provider retries: still 200, no double credit.
	for i := 0; i < 3; i++ {
		rec := f.postWebhook(t, paymentID)
		if rec.Code != http.StatusOK {
			t.Fatalf("replay %d: expected 200, got %d", i, rec.Code)
		}
	}
	if got := f.balances.get(f.account); got != 5000 {
		t.Fatalf("replay double-credited: %d", got)
	}
}

func TestWebhookIgnoresUnapprovedAndUnknown(t *testing.T) {
	f := newFixture(t)
	tx := f.createTopup(t, 5000)
	paymentID := f.paymentID(t, tx)

	// Payment still pending at the provider: acknowledged, no credit.
	rec := f.postWebhook(t, paymentID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := f.balances.get(f.account); got != 0 {
		t.Fatalf("unapproved webhook credited: %d", got)
	}

	// Non-payment event: acknowledged.
	body := []byte(`{"type": "plan", "data": {"id": 1}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/mercadopago", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for non-payment event, got %d", rec.Code)
	}

	// Garbage: 400.
	req = httptest.NewRequest(http.MethodPost, "/webhooks/mercadopago", bytes.NewReader([]byte("nope")))
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for garbage, got %d", rec.Code)
	}
}
