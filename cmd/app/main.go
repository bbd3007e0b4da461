package main

import (
	"context"
	"log"

	"github.com/SonthatQ/qr-restaurant/external/scb"
	"github.com/SonthatQ/qr-restaurant/internal/config"
	"github.com/SonthatQ/qr-restaurant/internal/db"
	"github.com/SonthatQ/qr-restaurant/internal/hub"
	"github.com/SonthatQ/qr-restaurant/internal/model"
	"github.com/SonthatQ/qr-restaurant/internal/repository"
	"github.com/SonthatQ/qr-restaurant/internal/services"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

func main() {
	ctx := context.Background()

	// ======================
	// CONFIG + INFRA
	// ======================
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	// ======================
	// EXTERNALS
	// ======================
	gateway := scb.NewClient(scb.Config{
		APIBase:      cfg.SCBAPIBase,
		TokenPath:    cfg.SCBTokenPath,
		QRCreatePath: cfg.SCBQRPath,
		InquiryPath:  cfg.SCBInquiryPath,
		ClientID:     cfg.SCBClientID,
		ClientSecret: cfg.SCBClientSecret,
		APIKey:       cfg.SCBAPIKey,
		Channel:      cfg.SCBChannel,
		BillerID:     cfg.SCBBillerID,
		Mock:         cfg.SCBMock,
	})
	if cfg.SCBMock {
		log.Println("SCB mock mode enabled; no gateway calls will leave this process")
	}

	// ======================
	// REPOSITORIES
	// ======================
	tableRepo := repository.NewTableRepository(pool)
	menuRepo := repository.NewMenuRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)

	// ======================
	// SERVICES
	// ======================
	orderSvc := services.NewOrderService(orderRepo, menuRepo)
	paymentSvc := services.NewPaymentService(paymentRepo, orderRepo, gateway, cfg.SCBRef3Prefix, cfg.AmountTolerance)

	// one hub per process, owned here and passed down
	broadcast := hub.New()

	if err := seedData(ctx, tableRepo, menuRepo); err != nil {
		log.Fatal(err)
	}

	// ======================
	// ECHO
	// ======================
	e := echo.New()
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	// ======================
	// ROUTES (ONLY REGISTRATION)
	// ======================
	registerCustomerRoutes(e, tableRepo, menuRepo, orderRepo, orderSvc, paymentSvc, broadcast)
	registerStaffRoutes(e, cfg, orderRepo, orderSvc, paymentSvc, broadcast)
	registerWebhookRoutes(e, cfg, orderRepo, paymentSvc, broadcast)

	// ======================
	// SERVER
	// ======================
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}

// seedData inserts demo tables and a small menu on an empty database so the
// flow is exercisable immediately after first boot.
func seedData(ctx context.Context, tables *repository.TableRepository, menu *repository.MenuRepository) error {
	n, err := tables.Count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		seedTables := []struct {
			name  string
			token string
		}{
			{"Table 1", "table1token-demo-123456"},
			{"Table 2", "table2token-demo-123456"},
		}
		for _, t := range seedTables {
			if _, err := tables.Insert(ctx, t.name, t.token, true); err != nil {
				return err
			}
		}
		log.Println("seeded demo tables")
	}

	n, err = menu.Count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		items := []model.MenuItem{
			{Name: "Americano", Description: "Coffee", Category: "Drinks", Price: 60, IsAvailable: true},
			{Name: "Latte", Description: "Milk coffee", Category: "Drinks", Price: 75, IsAvailable: true},
			{Name: "Fried Rice", Description: "Classic", Category: "Foods", Price: 89, IsAvailable: true},
			{Name: "Pad Thai", Description: "Noodles", Category: "Foods", Price: 99, IsAvailable: true},
		}
		for _, it := range items {
			if _, err := menu.Insert(ctx, it); err != nil {
				return err
			}
		}
		log.Println("seeded demo menu")
	}

	return nil
}
