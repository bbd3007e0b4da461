package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/SonthatQ/qr-restaurant/external/scb"
	"github.com/SonthatQ/qr-restaurant/internal/config"
	"github.com/SonthatQ/qr-restaurant/internal/hub"
	"github.com/SonthatQ/qr-restaurant/internal/services"

	"github.com/labstack/echo/v4"
)

// callbackService is the slice of PaymentService the webhook path uses.
type callbackService interface {
	HandleCallback(ctx context.Context, payload map[string]interface{}) (*services.CallbackResult, error)
}

// tableTokenSource resolves an order to its table broadcast group.
type tableTokenSource interface {
	GetTableToken(ctx context.Context, orderID int64) (string, error)
}

func registerWebhookRoutes(
	e *echo.Echo,
	cfg *config.Settings,
	tokens tableTokenSource,
	callbacks callbackService,
	h *hub.Hub,
) {
	webhookCfg := scb.WebhookConfig{
		Secret:          cfg.SCBWebhookSecret,
		SignatureHeader: cfg.SCBSignatureHeader,
		TimestampHeader: cfg.SCBTimestampHeader,
		Production:      cfg.IsProduction(),
	}

	// ============================
	// SCB PAYMENT CALLBACK
	// (public; authenticated by signature, never by session)
	// ============================
	e.POST("/payments/scb/callback", func(c echo.Context) error {
		ctx := c.Request().Context()

		raw, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
		}

		ok, reason := scb.VerifyWebhookSignature(webhookCfg, c.Request().Header.Get, raw)
		if !ok {
			// non-200 so the provider's retry policy re-delivers
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "webhook verify failed: " + reason})
		}

		payload := map[string]interface{}{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &payload); err != nil {
				payload = map[string]interface{}{}
			}
		}

		result, err := callbacks.HandleCallback(ctx, payload)
		if err != nil {
			if errors.Is(err, services.ErrPaymentNotFound) {
				return c.JSON(http.StatusNotFound, echo.Map{"error": "payment not found for callback"})
			}
			return err
		}

		// notify only when this delivery changed the payment; a replayed or
		// non-matching callback is acknowledged without a second event
		if result.Updated {
			token, err := tokens.GetTableToken(ctx, result.Payment.OrderID)
			if err != nil {
				return err
			}
			groups := []string{"staff"}
			if token != "" {
				groups = append(groups, "table:"+token)
			}
			h.PublishToAll(groups, echo.Map{
				"type":           "payment_update",
				"order_id":       result.Payment.OrderID,
				"payment_status": result.Payment.Status,
			})
		}

		return c.JSON(http.StatusOK, echo.Map{
			"ok":       true,
			"inserted": result.Inserted,
			"updated":  result.Updated,
		})
	})
}
