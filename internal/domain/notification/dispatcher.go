package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/risapp/ris-api/internal/domain/account"
	"github.com/risapp/ris-api/internal/domain/settlement"
	"github.com/risapp/ris-api/internal/pkg/push"
)

// Dispatcher fans terminal settlement events out to the in-app feed,
// FCM, and the websocket hub. Every channel is best effort: a delivery
// failure is logged and never reaches the settlement path.
type Dispatcher struct {
	repo     *Repository
	accounts *account.Repository
	fcm      *push.FCMClient
	hub      *Hub
}

func NewDispatcher(repo *Repository, accounts *account.Repository, fcm *push.FCMClient, hub *Hub) *Dispatcher {
	return &Dispatcher{repo: repo, accounts: accounts, fcm: fcm, hub: hub}
}

// NotifyTransition implements the settlement engine's notifier. It
// returns immediately; delivery happens in the background.
func (d *Dispatcher) NotifyTransition(tx *settlement.Transaction) {
	n := buildNotification(tx)
	if n == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		d.deliver(ctx, n, tx)
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, n *Notification, tx *settlement.Transaction) {
	if err := d.repo.Create(ctx, n); err != nil {
		log.Warn().Err(err).Str("transaction_id", tx.ID.String()).Msg("in-app notification insert failed")
	}

	if d.hub != nil {
		if err := d.hub.SendToAccount(n.AccountID, n); err != nil {
			log.Warn().Err(err).Str("account_id", n.AccountID.String()).Msg("websocket notification failed")
		}
	}

	if d.fcm != nil && d.fcm.Enabled() {
		acc, err := d.accounts.GetByID(ctx, n.AccountID)
		if err != nil {
			log.Warn().Err(err).Str("account_id", n.AccountID.String()).Msg("account lookup for push failed")
			return
		}
		if acc.FCMToken == "" {
			return
		}
		err = d.fcm.Send(ctx, &push.PushMessage{
			Token: acc.FCMToken,
			Title: n.Title,
			Body:  n.Body,
			Data:  n.Data,
		})
		if err != nil {
			log.Warn().Err(err).Str("account_id", n.AccountID.String()).Msg("push notification failed")
		}
	}
}

func buildNotification(tx *settlement.Transaction) *Notification {
	var typ Type
	var title, body string

	amountBRL := fmt.Sprintf("%d.%02d", tx.AmountIn/100, tx.AmountIn%100)
	amountVES := fmt.Sprintf("%d.%02d", tx.AmountOut/100, tx.AmountOut%100)

	switch {
	case tx.Kind == settlement.KindTopup && tx.Status == settlement.StatusCompleted:
		typ = TypeTopupCompleted
		title = "Recarga confirmada"
		body = fmt.Sprintf("Sua recarga de R$ %s foi confirmada.", amountBRL)
	case tx.Kind == settlement.KindTopup && tx.Status == settlement.StatusRejected:
		typ = TypeTopupRejected
		title = "Recarga rejeitada"
		body = fmt.Sprintf("Sua recarga de R$ %s foi rejeitada: %s", amountBRL, tx.TerminalReason)
	case tx.Kind == settlement.KindPayout && tx.Status == settlement.StatusCompleted:
		typ = TypePayoutCompleted
		title = "Retirada concluída"
		body = fmt.Sprintf("Sua retirada de Bs. %s foi enviada.", amountVES)
	case tx.Kind == settlement.KindPayout && tx.Status == settlement.StatusRejected:
		typ = TypePayoutRejected
		title = "Retirada rejeitada"
		body = fmt.Sprintf("Sua retirada foi rejeitada e o saldo devolvido: %s", tx.TerminalReason)
	case tx.Status == settlement.StatusCancelled:
		typ = TypeCancelled
		title = "Transação cancelada"
		body = fmt.Sprintf("Sua transação de R$ %s foi cancelada.", amountBRL)
	default:
		return nil
	}

	return &Notification{
		ID:        uuid.New(),
		AccountID: tx.AccountID,
		Type:      typ,
		Title:     title,
		Body:      body,
		Data: Payload{
			"transaction_id": tx.ID.String(),
			"kind":           string(tx.Kind),
			"status":         string(tx.Status),
		},
	}
}
