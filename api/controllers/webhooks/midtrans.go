package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/edulink-id/studyfair-backend/api/responses"
	"github.com/edulink-id/studyfair-backend/internal/payments"
	midtranswebhook "github.com/edulink-id/studyfair-backend/internal/webhooks/midtrans"
	pkgerrors "github.com/edulink-id/studyfair-backend/pkg/errors"
	"github.com/edulink-id/studyfair-backend/pkg/logger"
)

type midtransWebhookService interface {
	HandleNotification(ctx context.Context, notification midtranswebhook.Notification) (*payments.Outcome, error)
}

// MidtransWebhook ingests gateway payment notifications. Malformed payloads
// get a 400 and bad signatures a 401 so misconfigured senders notice; every
// other outcome is acknowledged with a 200, because the gateway retries
// non-2xx aggressively and the poll reconcile path repairs anything missed.
func MidtransWebhook(svc midtransWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		var notification midtranswebhook.Notification
		if err := json.Unmarshal(payload, &notification); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification payload"))
			return
		}

		outcome, err := svc.HandleNotification(ctx, notification)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeValidation) || pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if logg != nil {
				logCtx := logg.WithOrderID(ctx, notification.OrderID)
				logg.Error(logCtx, "webhook processing failed, acknowledged for retry via reconcile", err)
			}
			responses.WriteSuccess(w, map[string]string{"status": "acknowledged"})
			return
		}

		if logg != nil {
			logCtx := logg.WithOrderID(ctx, notification.OrderID)
			logg.Info(logCtx, fmt.Sprintf("notification %s processed: %s", notification.TransactionStatus, outcome.Result))
		}
		responses.WriteSuccess(w, map[string]string{
			"status": "ok",
			"result": string(outcome.Result),
		})
	}
}
