package main

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/SonthatQ/qr-restaurant/internal/config"
	"github.com/SonthatQ/qr-restaurant/internal/hub"
	"github.com/SonthatQ/qr-restaurant/internal/middleware"
	"github.com/SonthatQ/qr-restaurant/internal/repository"
	"github.com/SonthatQ/qr-restaurant/internal/services"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// passwordMatches accepts either a bcrypt hash (recommended) or, for dev
// setups, a plain value compared in constant time.
func passwordMatches(stored, supplied string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(supplied)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}

func registerStaffRoutes(
	e *echo.Echo,
	cfg *config.Settings,
	orderRepo *repository.OrderRepository,
	orderSvc *services.OrderService,
	paymentSvc *services.PaymentService,
	h *hub.Hub,
) {
	// ============================
	// LOGIN
	// ============================
	e.POST("/staff/login", func(c echo.Context) error {
		var req loginRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
		}

		var role string
		switch {
		case req.Username == cfg.StaffUser && passwordMatches(cfg.StaffPassword, req.Password):
			role = "staff"
		case req.Username == cfg.AdminUser && passwordMatches(cfg.AdminPassword, req.Password):
			role = "admin"
		default:
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}

		token, err := middleware.GenerateToken(req.Username, role, 12)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, echo.Map{"token": token, "role": role})
	})

	// ============================
	// STAFF WEBSOCKET
	// (token in query string; browsers cannot set ws headers)
	// ============================
	e.GET("/ws/staff", func(c echo.Context) error {
		if middleware.ParseToken(c.QueryParam("token")) == nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
		}

		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}

		h.Join("staff", ws)
		defer func() {
			h.Leave("staff", ws)
			ws.Close()
		}()

		readUntilClosed(ws)
		return nil
	})

	// ============================
	// PROTECTED STAFF API
	// ============================
	g := e.Group("/staff", middleware.JWTMiddleware())

	g.GET("/orders", func(c echo.Context) error {
		ctx := c.Request().Context()

		limit := 50
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}

		orders, payStatus, err := orderRepo.ListRecent(ctx, limit)
		if err != nil {
			return err
		}

		out := make([]echo.Map, 0, len(orders))
		for _, o := range orders {
			out = append(out, echo.Map{
				"order_id":       o.OrderID,
				"table_id":       o.TableID,
				"invoice_ref":    o.InvoiceRef,
				"total":          o.TotalAmount,
				"status":         o.Status,
				"order_status":   o.OrderStatus,
				"payment_status": payStatus[o.OrderID],
				"created_at":     o.CreatedAt,
			})
		}
		return c.JSON(http.StatusOK, echo.Map{"orders": out})
	})

	g.POST("/orders/:id/status", func(c echo.Context) error {
		ctx := c.Request().Context()
		orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || orderID <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
		}

		status := c.QueryParam("status")
		if status == "" {
			var body struct {
				Status string `json:"status"`
			}
			if err := c.Bind(&body); err == nil {
				status = body.Status
			}
		}
		if !services.AllowedKitchenStatuses[status] {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status"})
		}

		if err := orderSvc.UpdateKitchenStatus(ctx, orderID, status); err != nil {
			if errors.Is(err, services.ErrOrderNotFound) {
				return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
			}
			return err
		}

		event := echo.Map{
			"type":         "order_status",
			"order_id":     orderID,
			"order_status": status,
		}
		groups := []string{"staff"}
		token, err := orderRepo.GetTableToken(ctx, orderID)
		if err != nil {
			return err
		}
		if token != "" {
			groups = append(groups, "table:"+token)
		}
		h.PublishToAll(groups, event)

		return c.JSON(http.StatusOK, echo.Map{"ok": true, "order_id": orderID, "order_status": status})
	})

	g.POST("/orders/:id/notify_payment", func(c echo.Context) error {
		ctx := c.Request().Context()
		orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || orderID <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
		}

		payment, err := paymentSvc.ConfirmManually(ctx, orderID)
		if err != nil {
			if errors.Is(err, services.ErrPaymentNotFound) {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "order has no payment record"})
			}
			return err
		}

		event := echo.Map{
			"type":           "payment_update",
			"order_id":       orderID,
			"payment_status": payment.Status,
			"paid_at":        payment.PaidAt,
		}
		groups := []string{"staff"}
		token, err := orderRepo.GetTableToken(ctx, orderID)
		if err != nil {
			return err
		}
		if token != "" {
			groups = append(groups, "table:"+token)
		}
		// re-pressing on an already-paid order still notifies, so stale
		// dashboards refresh
		h.PublishToAll(groups, event)

		return c.JSON(http.StatusOK, echo.Map{"ok": true, "order_id": orderID, "payment_status": payment.Status})
	})

	// ============================
	// SALES REPORT
	// ============================
	g.GET("/report", func(c echo.Context) error {
		ctx := c.Request().Context()

		from := time.Time{}
		to := time.Now().UTC()

		if d := c.QueryParam("date_from"); d != "" {
			t, err := time.Parse("2006-01-02", d)
			if err != nil {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date_from"})
			}
			from = t
			if hr := c.QueryParam("hour_from"); hr != "" {
				if n, err := strconv.Atoi(hr); err == nil && n >= 0 && n <= 23 {
					from = from.Add(time.Duration(n) * time.Hour)
				}
			}
		}
		if d := c.QueryParam("date_to"); d != "" {
			t, err := time.Parse("2006-01-02", d)
			if err != nil {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date_to"})
			}
			to = t.Add(24*time.Hour - time.Second)
			if hr := c.QueryParam("hour_to"); hr != "" {
				if n, err := strconv.Atoi(hr); err == nil && n >= 0 && n <= 23 {
					to = t.Add(time.Duration(n)*time.Hour + 59*time.Minute + 59*time.Second)
				}
			}
		}

		orders, total, err := orderRepo.ReportPaid(ctx, from, to)
		if err != nil {
			return err
		}

		return c.JSON(http.StatusOK, echo.Map{
			"ok":           true,
			"total_amount": total,
			"total_count":  len(orders),
			"orders":       orders,
		})
	})
}
