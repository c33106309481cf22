package FiberConfig

import (
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/gorm"

	"Mizan/Controllers"
	"Mizan/Models"
	"Mizan/middleware"
)

func SetupRoutes(app *fiber.App, db *gorm.DB) {
	// Initialize handlers
	invoiceController := Controllers.NewInvoiceController(db)
	paymentController := Controllers.NewPaymentController(db)
	ledgerController := Controllers.NewLedgerController(db)

	// API group
	api := app.Group("/api")

	// Invoice routes - next-number BEFORE the ID route to avoid conflicts
	invoices := api.Group("/invoices")
	invoices.Get("/next-number", invoiceController.NextInvoiceNumber)
	invoices.Post("/", invoiceController.CreateInvoice)
	invoices.Get("/:id", invoiceController.GetInvoiceDetail)
	invoices.Delete("/:id", invoiceController.DeleteInvoice)

	// Settlement routes
	invoices.Post("/:id/payments", paymentController.ApplyPayment)
	invoices.Post("/:id/force-close", paymentController.ForceClose)

	// Company-scoped routes
	companies := api.Group("/companies")
	companies.Get("/:company_id/invoices", invoiceController.ListInvoices)
	companies.Get("/:company_id/ledger", ledgerController.CompanyLedger)
	companies.Get("/:company_id/ledger/:party_id", ledgerController.PartyLedger)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}

func FiberConfig() {
	fmt.Println("Server Up...")
	app := fiber.New()
	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestCompression, // 2
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, Idempotency-Key",
		AllowCredentials: true,
		MaxAge:           300, // Max age for preflight requests caching (5 minutes)
	}))

	SetupRoutes(app, Models.DB)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3001"
	}
	app.Listen(":" + port)
}
