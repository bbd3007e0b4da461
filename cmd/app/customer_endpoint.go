package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/SonthatQ/qr-restaurant/internal/hub"
	"github.com/SonthatQ/qr-restaurant/internal/model"
	"github.com/SonthatQ/qr-restaurant/internal/repository"
	"github.com/SonthatQ/qr-restaurant/internal/services"

	"github.com/labstack/echo/v4"
)

type createOrderRequest struct {
	Cart []model.CartLine `json:"cart"`
	Note string           `json:"note"`
}

func registerCustomerRoutes(
	e *echo.Echo,
	tableRepo *repository.TableRepository,
	menuRepo *repository.MenuRepository,
	orderRepo *repository.OrderRepository,
	orderSvc *services.OrderService,
	paymentSvc *services.PaymentService,
	h *hub.Hub,
) {
	// ============================
	// MENU (per table token)
	// ============================
	e.GET("/api/t/:token/menu", func(c echo.Context) error {
		table, err := tableRepo.GetActiveByToken(c.Request().Context(), c.Param("token"))
		if err != nil {
			return err
		}
		if table == nil {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "table not found"})
		}

		items, err := menuRepo.ListAvailable(c.Request().Context())
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, echo.Map{
			"table": table,
			"items": items,
		})
	})

	// ============================
	// CREATE ORDER + ISSUE QR
	// ============================
	e.POST("/api/t/:token/orders", func(c echo.Context) error {
		ctx := c.Request().Context()

		table, err := tableRepo.GetActiveByToken(ctx, c.Param("token"))
		if err != nil {
			return err
		}
		if table == nil {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "table not found"})
		}

		var req createOrderRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
		}

		order, _, err := orderSvc.Create(ctx, table, req.Cart, req.Note)
		if err != nil {
			if errors.Is(err, services.ErrEmptyCart) {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "cart is empty"})
			}
			return err
		}

		// QR issuance is part of checkout: if the gateway fails, the whole
		// request fails and no payable order is announced
		payment, err := paymentSvc.CreateQR(ctx, order)
		if err != nil {
			return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment gateway unavailable"})
		}

		h.Publish("staff", echo.Map{
			"type":        "new_order",
			"order_id":    order.OrderID,
			"table":       table.Name,
			"total":       order.TotalAmount,
			"invoice_ref": order.InvoiceRef,
			"created_at":  order.CreatedAt,
		})
		h.PublishToAll([]string{"staff", "table:" + table.Token}, echo.Map{
			"type":     "order_created",
			"order_id": order.OrderID,
		})

		return c.JSON(http.StatusOK, echo.Map{
			"ok":              true,
			"order_id":        order.OrderID,
			"invoice_ref":     order.InvoiceRef,
			"qr_ready":        true,
			"txn_ref":         payment.TxnRef,
			"qr_payload":      payment.QRPayload,
			"qr_image_base64": payment.QRImageBase64,
			"payment_status":  payment.Status,
		})
	})

	// ============================
	// ORDER LOOKUPS
	// ============================
	e.GET("/api/orders/:id", func(c echo.Context) error {
		ctx := c.Request().Context()
		orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || orderID <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
		}

		order, err := orderRepo.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
		}

		payment, err := paymentSvc.PaymentRepo.GetByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		paymentStatus := "unpaid"
		if payment != nil {
			paymentStatus = payment.Status
		}

		return c.JSON(http.StatusOK, echo.Map{
			"order_id":       order.OrderID,
			"invoice_ref":    order.InvoiceRef,
			"total":          order.TotalAmount,
			"status":         order.Status,
			"payment_status": paymentStatus,
		})
	})

	e.GET("/api/orders/:id/status", func(c echo.Context) error {
		ctx := c.Request().Context()
		orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || orderID <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
		}

		order, err := orderRepo.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
		}

		items, err := orderRepo.GetItems(ctx, orderID)
		if err != nil {
			return err
		}

		payment, err := paymentSvc.PaymentRepo.GetByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		paymentStatus := "unpaid"
		if payment != nil {
			paymentStatus = payment.Status
		}

		return c.JSON(http.StatusOK, echo.Map{
			"ok":             true,
			"order_id":       order.OrderID,
			"invoice_ref":    order.InvoiceRef,
			"total":          order.TotalAmount,
			"note":           order.Note,
			"created_at":     order.CreatedAt,
			"payment_status": paymentStatus,
			"items":          items,
		})
	})

	// ============================
	// PAYMENT POLL (webhook fallback)
	// ============================
	e.POST("/api/orders/:id/poll", func(c echo.Context) error {
		ctx := c.Request().Context()
		orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || orderID <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
		}

		status, changed, err := paymentSvc.PollStatus(ctx, orderID)
		if err != nil {
			if errors.Is(err, services.ErrPaymentNotFound) {
				return c.JSON(http.StatusNotFound, echo.Map{"error": "payment not found"})
			}
			return c.JSON(http.StatusBadGateway, echo.Map{"error": "status inquiry failed"})
		}

		// a poll that found nothing new is not a change; observers only hear
		// about transitions
		if changed {
			token, err := orderRepo.GetTableToken(ctx, orderID)
			if err != nil {
				return err
			}
			groups := []string{"staff"}
			if token != "" {
				groups = append(groups, "table:"+token)
			}
			h.PublishToAll(groups, echo.Map{
				"type":           "payment_update",
				"order_id":       orderID,
				"payment_status": status,
			})
		}

		return c.JSON(http.StatusOK, echo.Map{"ok": true, "payment_status": status})
	})

	// ============================
	// TABLE WEBSOCKET
	// ============================
	e.GET("/ws/table/:token", func(c echo.Context) error {
		ctx := c.Request().Context()

		table, err := tableRepo.GetActiveByToken(ctx, c.Param("token"))
		if err != nil {
			return err
		}
		if table == nil {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "table not found"})
		}

		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}

		group := "table:" + table.Token
		h.Join(group, ws)
		defer func() {
			h.Leave(group, ws)
			ws.Close()
		}()

		readUntilClosed(ws)
		return nil
	})
}
