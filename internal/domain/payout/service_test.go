package payout_test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/risapp/ris-api/internal/domain/payout"
	"github.com/risapp/ris-api/internal/domain/settlement"
	"github.com/risapp/ris-api/internal/pkg/imaging"
	"github.com/risapp/ris-api/internal/pkg/storage"
	"github.com/risapp/ris-api/internal/pkg/twilio"
)

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
	return nil, settlement.ErrNotFound
}

func (s *fakeStore) FindPendingTopupByAmount(ctx context.Context, accountID uuid.UUID, amountIn int64) (*settlement.Transaction, error) {
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
	return nil, nil
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

func (b *fakeBalances) set(accountID uuid.UUID, v int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.balances == nil {
		b.balances = make(map[uuid.UUID]int64)
	}
	b.balances[accountID] = v
}

type fixedRate struct{ rate int64 }

func (r fixedRate) CurrentRate(ctx context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(r.rate), nil
}

// fakeWhatsApp records outbound traffic and serves a canned receipt
// image for media downloads.
type fakeWhatsApp struct {
	mu       sync.Mutex
	operator []string
	replies  []string
	media    []byte
}

func (f *fakeWhatsApp) Enabled() bool { return true }

func (f *fakeWhatsApp) SendOperatorMessage(ctx context.Context, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.operator = append(f.operator, body)
	return nil
}

func (f *fakeWhatsApp) SendMessage(ctx context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, body)
	return nil
}

func (f *fakeWhatsApp) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.media, "image/png", nil
}

func (f *fakeWhatsApp) operatorMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.operator...)
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type payoutFixture struct {
	svc      *payout.Service
	store    *fakeStore
	balances *fakeBalances
	whatsapp *fakeWhatsApp
	account  uuid.UUID
}

func newPayoutFixture(t *testing.T) *payoutFixture {
	t.Helper()

	store := newFakeStore()
	balances := &fakeBalances{}
	whatsapp := &fakeWhatsApp{media: encodePNG(t, 320, 240)}

	st, err := storage.NewLocalStorage(t.TempDir(), "http://localhost/evidence")
	if err != nil {
		t.Fatalf("storage: %v", err)
	}

	engine := settlement.NewEngine(
		settlement.Config{MinTopupAmount: 1000, MaxTopupAmount: 200000},
		store, balances, fixedRate{rate: 78}, nil, nil,
	)
	svc := payout.NewService(engine, store, whatsapp, st, imaging.NewProcessor(imaging.DefaultConfig()))

	return &payoutFixture{
		svc:      svc,
		store:    store,
		balances: balances,
		whatsapp: whatsapp,
		account:  uuid.New(),
	}
}

func (f *payoutFixture) createPayout(t *testing.T, amount int64) *settlement.Transaction {
	t.Helper()
	tx, err := f.svc.Create(context.Background(), settlement.PayoutRequest{
		AccountID: f.account,
		AmountIn:  amount,
		Beneficiary: settlement.BeneficiarySnapshot{
			FullName:      "Maria Perez",
			DocumentID:    "V-12345678",
			BankCode:      "0102",
			BankName:      "Banco de Venezuela",
			AccountNumber: "01020123456789012345",
		},
	})
	if err != nil {
		t.Fatalf("create payout: %v", err)
	}
	return tx
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestCreateAlertsOperators(t *testing.T) {
	f := newPayoutFixture(t)
	f.balances.set(f.account, 50000)

	tx := f.createPayout(t, 10000)

	waitFor(t, func() bool { return len(f.whatsapp.operatorMessages()) == 1 })
	msg := f.whatsapp.operatorMessages()[0]
	if !strings.Contains(msg, "ID: "+tx.ID.String()) {
		t.Fatalf("alert missing transaction id: %q", msg)
	}
	if !strings.Contains(msg, "Maria Perez") || !strings.Contains(msg, "Banco de Venezuela") {
		t.Fatalf("alert missing beneficiary details: %q", msg)
	}
	// 10000 cents at rate 78 is 780000 VES minor units.
	if !strings.Contains(msg, "7800.00 VES") {
		t.Fatalf("alert amount wrong: %q", msg)
	}
}

func TestChatImageCompletesByExplicitID(t *testing.T) {
	f := newPayoutFixture(t)
	f.balances.set(f.account, 50000)
	tx := f.createPayout(t, 10000)

	msg := &twilio.InboundMessage{
		From:      "whatsapp:+5215550001111",
		Body:      fmt.Sprintf("Listo, ID: %s", tx.ID),
		MediaURLs: []string{"https://api.twilio.com/media/1"},
	}
	res, err := f.svc.HandleChatImage(context.Background(), msg)
	if err != nil {
		t.Fatalf("chat image: %v", err)
	}
	if !res.Applied {
		t.Fatal("expected transition to apply")
	}
	if res.TransactionID != tx.ID {
		t.Fatalf("wrong target: %s", res.TransactionID)
	}

	stored, _ := f.store.GetTransaction(context.Background(), tx.ID)
	if stored.Status != settlement.StatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}
	if stored.ProcessedVia != settlement.TriggerChat {
		t.Fatalf("expected chat trigger, got %s", stored.ProcessedVia)
	}
	if stored.EvidenceKey == "" {
		t.Fatal("expected evidence key")
	}

	// Second image for the same payout: polite no-op.
	res, err = f.svc.HandleChatImage(context.Background(), msg)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Applied {
		t.Fatal("replay should not apply")
	}
	if !strings.Contains(res.Reply, "ya fue procesada") {
		t.Fatalf("unexpected replay reply: %q", res.Reply)
	}
}

func TestChatImageFallsBackToLatestPending(t *testing.T) {
	f := newPayoutFixture(t)
	f.balances.set(f.account, 50000)
	older := f.createPayout(t, 5000)
	time.Sleep(5 * time.Millisecond)
	newer := f.createPayout(t, 7000)

	msg := &twilio.InboundMessage{
		Body:      "comprobante adjunto",
		MediaURLs: []string{"https://api.twilio.com/media/2"},
	}
	res, err := f.svc.HandleChatImage(context.Background(), msg)
	if err != nil {
		t.Fatalf("chat image: %v", err)
	}
	if res.TransactionID != newer.ID {
		t.Fatalf("expected latest pending %s, got %s", newer.ID, res.TransactionID)
	}

	stored, _ := f.store.GetTransaction(context.Background(), older.ID)
	if stored.Status != settlement.StatusPending {
		t.Fatalf("older payout should stay pending, got %s", stored.Status)
	}
}

func TestChatImageWithoutMediaAsksForProof(t *testing.T) {
	f := newPayoutFixture(t)

	res, err := f.svc.HandleChatImage(context.Background(), &twilio.InboundMessage{Body: "hola"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if res.Applied {
		t.Fatal("nothing should apply")
	}
	if !strings.Contains(res.Reply, "imagen") {
		t.Fatalf("expected help reply, got %q", res.Reply)
	}
}

func TestChatImageNoPendingPayout(t *testing.T) {
	f := newPayoutFixture(t)

	res, err := f.svc.HandleChatImage(context.Background(), &twilio.InboundMessage{
		Body:      "listo",
		MediaURLs: []string{"https://api.twilio.com/media/3"},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if res.Applied {
		t.Fatal("nothing should apply")
	}
	if !strings.Contains(res.Reply, "No hay retiradas pendientes") {
		t.Fatalf("unexpected reply: %q", res.Reply)
	}
}

func TestRejectRestoresFunds(t *testing.T) {
	f := newPayoutFixture(t)
	f.balances.set(f.account, 20000)
	tx := f.createPayout(t, 15000)

	operator := uuid.New()
	applied, err := f.svc.Reject(context.Background(), operator, tx.ID, "datos bancarios incorrectos")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if !applied {
		t.Fatal("expected reject to apply")
	}

	f.balances.mu.Lock()
	balance := f.balances.balances[f.account]
	f.balances.mu.Unlock()
	if balance != 20000 {
		t.Fatalf("expected restored balance 20000, got %d", balance)
	}

	stored, _ := f.store.GetTransaction(context.Background(), tx.ID)
	if stored.Status != settlement.StatusRejected {
		t.Fatalf("expected rejected, got %s", stored.Status)
	}
	if stored.TerminalReason != "datos bancarios incorrectos" {
		t.Fatalf("reason not recorded: %q", stored.TerminalReason)
	}
}
