package server

import (
	"context"
	"net/http"

	"spendshelf/internal/handlers"
	applog "spendshelf/internal/log"
)

func newRouter(uploadDir string) http.Handler {
	mux := http.NewServeMux()
	applog.Debug(context.Background(), "registering http routes")
	mux.HandleFunc("/healthz", handlers.Health)
	mux.HandleFunc("/api/categories", handlers.CategoryResource)
	mux.HandleFunc("/api/categories/", handlers.CategoryResource)
	mux.HandleFunc("/api/measurement-units", handlers.MeasurementUnitResource)
	mux.HandleFunc("/api/measurement-units/", handlers.MeasurementUnitResource)
	mux.HandleFunc("/api/merchants", handlers.MerchantResource)
	mux.HandleFunc("/api/merchants/", handlers.MerchantResource)
	mux.HandleFunc("/api/products", handlers.ProductDefinitionResource)
	mux.HandleFunc("/api/products/", handlers.ProductDefinitionResource)
	mux.HandleFunc("/api/receipts", handlers.ReceiptResource)
	mux.HandleFunc("/api/receipts/", handlers.ReceiptResource)
	mux.HandleFunc("/api/reports/spending-by-category", handlers.SpendingByCategoryReport)
	mux.HandleFunc("/api/reports/enriched-merchants", handlers.EnrichedMerchantReport)
	mux.HandleFunc("/api/reports/dashboard-kpis", handlers.DashboardKPIReport)
	if uploadDir != "" {
		mux.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(uploadDir))))
		applog.Debug(context.Background(), "route registered", "path", "/uploads/", "static", true)
	}
	applog.Debug(context.Background(), "http routes registered")
	return mux
}
