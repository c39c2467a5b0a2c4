package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"spendshelf/models"
)

func TestReceiptTotal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		items []models.LineItem
		want  string
	}{
		{"empty", nil, "0"},
		{"single item", []models.LineItem{
			{Price: dec(t, "1.25"), Quantity: dec(t, "2")},
		}, "2.5"},
		{"fractional quantity", []models.LineItem{
			{Price: dec(t, "1.2500"), Quantity: dec(t, "0.5000")},
		}, "0.63"},
		{"rounds on the final sum only", []models.LineItem{
			{Price: dec(t, "0.3333"), Quantity: dec(t, "1")},
			{Price: dec(t, "0.3333"), Quantity: dec(t, "1")},
			{Price: dec(t, "0.3333"), Quantity: dec(t, "1")},
		}, "1"},
		{"zero price", []models.LineItem{
			{Price: dec(t, "0"), Quantity: dec(t, "3")},
		}, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := receiptTotal(tc.items).String(); got != tc.want {
				t.Fatalf("receiptTotal = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestCreateReceipt(t *testing.T) {
	db := withTestDatabase(t)
	merchant := models.Merchant{Name: "SuperMart"}
	mustCreate(t, db, &merchant)

	body, _ := json.Marshal(map[string]any{
		"merchant_id":   merchant.ID,
		"purchase_date": "2025-11-10",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/receipts", bytes.NewReader(body))
	w := httptest.NewRecorder()
	ReceiptResource(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp receiptView
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.PurchaseDate != "2025-11-10" {
		t.Fatalf("expected purchase_date 2025-11-10, got %q", resp.PurchaseDate)
	}
	if !resp.TotalPrice.IsZero() {
		t.Fatalf("expected zero total for fresh receipt, got %s", resp.TotalPrice)
	}
}

func TestCreateReceiptValidation(t *testing.T) {
	db := withTestDatabase(t)
	merchant := models.Merchant{Name: "SuperMart"}
	mustCreate(t, db, &merchant)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"unknown merchant", map[string]any{"merchant_id": 999, "purchase_date": "2025-11-10"}},
		{"missing merchant", map[string]any{"purchase_date": "2025-11-10"}},
		{"bad date", map[string]any{"merchant_id": merchant.ID, "purchase_date": "10/11/2025"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, _ := json.Marshal(tc.body)
			req := httptest.NewRequest(http.MethodPost, "/api/receipts", bytes.NewReader(body))
			w := httptest.NewRecorder()
			ReceiptResource(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestListReceiptsFilters(t *testing.T) {
	db := withTestDatabase(t)
	superMart := models.Merchant{Name: "SuperMart"}
	mustCreate(t, db, &superMart)
	ecoFoods := models.Merchant{Name: "EcoFoods"}
	mustCreate(t, db, &ecoFoods)

	barcode := "R-100"
	mustCreate(t, db, &models.Receipt{MerchantID: superMart.ID, PurchaseDate: testDate(t, "2025-11-01"), Barcode: &barcode})
	mustCreate(t, db, &models.Receipt{MerchantID: superMart.ID, PurchaseDate: testDate(t, "2025-11-15")})
	mustCreate(t, db, &models.Receipt{MerchantID: ecoFoods.ID, PurchaseDate: testDate(t, "2025-11-20")})

	cases := []struct {
		name  string
		query string
		want  int
	}{
		{"all", "", 3},
		{"by merchant", fmt.Sprintf("?merchant_id=%d", superMart.ID), 2},
		{"by barcode", "?barcode=R-100", 1},
		{"inclusive range", "?start_date=2025-11-15&end_date=2025-11-20", 2},
		{"empty range", "?start_date=2025-12-01", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/receipts"+tc.query, nil)
			w := httptest.NewRecorder()
			ReceiptResource(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
			}
			var resp []receiptView
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(resp) != tc.want {
				t.Fatalf("expected %d receipts, got %d", tc.want, len(resp))
			}
		})
	}
}

func TestLineItemLifecycleRefreshesTotal(t *testing.T) {
	db := withTestDatabase(t)
	product := seedProductGraph(t, db, "Fruit", "Bananas")
	merchant := models.Merchant{Name: "SuperMart"}
	mustCreate(t, db, &merchant)
	receipt := models.Receipt{MerchantID: merchant.ID, PurchaseDate: testDate(t, "2025-11-10")}
	mustCreate(t, db, &receipt)

	// Add an item.
	body, _ := json.Marshal(map[string]any{
		"product_definition_id": product.ID,
		"price":                 "1.25",
		"quantity":              "2",
	})
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/receipts/%d/items", receipt.ID), bytes.NewReader(body))
	w := httptest.NewRecorder()
	ReceiptResource(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var item models.LineItem
	if err := json.Unmarshal(w.Body.Bytes(), &item); err != nil {
		t.Fatalf("failed to decode item: %v", err)
	}

	var reloaded models.Receipt
	if err := db.First(&reloaded, receipt.ID).Error; err != nil {
		t.Fatalf("failed to reload receipt: %v", err)
	}
	if got := reloaded.TotalPrice.String(); got != "2.5" {
		t.Fatalf("expected stored total 2.5, got %s", got)
	}

	// Change the quantity.
	body, _ = json.Marshal(map[string]any{"quantity": "3"})
	req = httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/receipts/%d/items/%d", receipt.ID, item.ID), bytes.NewReader(body))
	w = httptest.NewRecorder()
	ReceiptResource(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if err := db.First(&reloaded, receipt.ID).Error; err != nil {
		t.Fatalf("failed to reload receipt: %v", err)
	}
	if got := reloaded.TotalPrice.String(); got != "3.75" {
		t.Fatalf("expected stored total 3.75, got %s", got)
	}

	// Remove the item.
	req = httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/receipts/%d/items/%d", receipt.ID, item.ID), nil)
	w = httptest.NewRecorder()
	ReceiptResource(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}
	if err := db.First(&reloaded, receipt.ID).Error; err != nil {
		t.Fatalf("failed to reload receipt: %v", err)
	}
	if !reloaded.TotalPrice.IsZero() {
		t.Fatalf("expected zero total after delete, got %s", reloaded.TotalPrice)
	}
}

func TestCreateLineItemValidation(t *testing.T) {
	db := withTestDatabase(t)
	product := seedProductGraph(t, db, "Fruit", "Bananas")
	merchant := models.Merchant{Name: "SuperMart"}
	mustCreate(t, db, &merchant)
	receipt := models.Receipt{MerchantID: merchant.ID, PurchaseDate: testDate(t, "2025-11-10")}
	mustCreate(t, db, &receipt)

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"negative price", map[string]any{"product_definition_id": product.ID, "price": "-1", "quantity": "1"}, http.StatusBadRequest},
		{"zero quantity", map[string]any{"product_definition_id": product.ID, "price": "1", "quantity": "0"}, http.StatusBadRequest},
		{"unknown product", map[string]any{"product_definition_id": 999, "price": "1", "quantity": "1"}, http.StatusBadRequest},
		{"missing fields", map[string]any{"product_definition_id": product.ID}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, _ := json.Marshal(tc.body)
			req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/receipts/%d/items", receipt.ID), bytes.NewReader(body))
			w := httptest.NewRecorder()
			ReceiptResource(w, req)

			if w.Code != tc.want {
				t.Fatalf("expected status %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestShowReceiptRecomputesTotal(t *testing.T) {
	db := withTestDatabase(t)
	product := seedProductGraph(t, db, "Fruit", "Bananas")
	merchant := models.Merchant{Name: "SuperMart"}
	mustCreate(t, db, &merchant)
	// Stored total is stale on purpose; the read path must not trust it.
	receipt := models.Receipt{MerchantID: merchant.ID, PurchaseDate: testDate(t, "2025-11-10"), TotalPrice: dec(t, "99.99")}
	mustCreate(t, db, &receipt)
	mustCreate(t, db, &models.LineItem{
		ReceiptID:           receipt.ID,
		ProductDefinitionID: product.ID,
		Price:               dec(t, "1.2500"),
		Quantity:            dec(t, "0.5000"),
	})

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/receipts/%d", receipt.ID), nil)
	w := httptest.NewRecorder()
	ReceiptResource(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp receiptView
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got := resp.TotalPrice.String(); got != "0.63" {
		t.Fatalf("expected recomputed total 0.63, got %s", got)
	}
}

func TestListReceiptsRecomputesTotals(t *testing.T) {
	db := withTestDatabase(t)
	product := seedProductGraph(t, db, "Fruit", "Bananas")
	merchant := models.Merchant{Name: "SuperMart"}
	mustCreate(t, db, &merchant)
	// Stored total is stale on purpose; the read path must not trust it.
	receipt := models.Receipt{MerchantID: merchant.ID, PurchaseDate: testDate(t, "2025-11-10"), TotalPrice: dec(t, "99.99")}
	mustCreate(t, db, &receipt)
	mustCreate(t, db, &models.LineItem{
		ReceiptID:           receipt.ID,
		ProductDefinitionID: product.ID,
		Price:               dec(t, "1.2500"),
		Quantity:            dec(t, "2.0000"),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/receipts", nil)
	w := httptest.NewRecorder()
	ReceiptResource(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp []receiptView
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("expected one receipt, got %d", len(resp))
	}
	if got := resp[0].TotalPrice.String(); got != "2.5" {
		t.Fatalf("expected recomputed total 2.5, got %s", got)
	}
}

func TestDeleteReceiptCascadesLineItems(t *testing.T) {
	db := withTestDatabase(t)
	product := seedProductGraph(t, db, "Fruit", "Bananas")
	merchant := models.Merchant{Name: "SuperMart"}
	mustCreate(t, db, &merchant)
	receipt := models.Receipt{MerchantID: merchant.ID, PurchaseDate: testDate(t, "2025-11-10")}
	mustCreate(t, db, &receipt)
	mustCreate(t, db, &models.LineItem{
		ReceiptID:           receipt.ID,
		ProductDefinitionID: product.ID,
		Price:               dec(t, "1.25"),
		Quantity:            dec(t, "1"),
	})

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/receipts/%d", receipt.ID), nil)
	w := httptest.NewRecorder()
	ReceiptResource(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}
	var items int64
	if err := db.Model(&models.LineItem{}).Count(&items).Error; err != nil {
		t.Fatalf("failed to count line items: %v", err)
	}
	if items != 0 {
		t.Fatalf("expected line items to be removed, found %d", items)
	}
}

func TestUpdateReceiptUnknownMerchant(t *testing.T) {
	db := withTestDatabase(t)
	merchant := models.Merchant{Name: "SuperMart"}
	mustCreate(t, db, &merchant)
	receipt := models.Receipt{MerchantID: merchant.ID, PurchaseDate: testDate(t, "2025-11-10")}
	mustCreate(t, db, &receipt)

	body, _ := json.Marshal(map[string]any{"merchant_id": 999})
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/receipts/%d", receipt.ID), bytes.NewReader(body))
	w := httptest.NewRecorder()
	ReceiptResource(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestLineItemForWrongReceiptNotFound(t *testing.T) {
	db := withTestDatabase(t)
	product := seedProductGraph(t, db, "Fruit", "Bananas")
	merchant := models.Merchant{Name: "SuperMart"}
	mustCreate(t, db, &merchant)
	first := models.Receipt{MerchantID: merchant.ID, PurchaseDate: testDate(t, "2025-11-10")}
	mustCreate(t, db, &first)
	second := models.Receipt{MerchantID: merchant.ID, PurchaseDate: testDate(t, "2025-11-11")}
	mustCreate(t, db, &second)
	item := models.LineItem{
		ReceiptID:           first.ID,
		ProductDefinitionID: product.ID,
		Price:               dec(t, "1"),
		Quantity:            dec(t, "1"),
	}
	mustCreate(t, db, &item)

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/receipts/%d/items/%d", second.ID, item.ID), nil)
	w := httptest.NewRecorder()
	ReceiptResource(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}
