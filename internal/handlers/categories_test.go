package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"spendshelf/models"
)

func TestCreateCategoryAssignsPaletteColors(t *testing.T) {
	withTestDatabase(t)

	for i, name := range []string{"Fruit", "Dairy", "Bakery"} {
		body, _ := json.Marshal(map[string]string{"name": name})
		req := httptest.NewRequest(http.MethodPost, "/api/categories", bytes.NewReader(body))
		w := httptest.NewRecorder()
		CategoryResource(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("expected status 201 for %q, got %d: %s", name, w.Code, w.Body.String())
		}
		var resp categoryResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Color != categoryPalette[i] {
			t.Fatalf("expected category %d to get color %s, got %s", i, categoryPalette[i], resp.Color)
		}
	}
}

func TestCreateCategoryRejectsDuplicateName(t *testing.T) {
	db := withTestDatabase(t)
	mustCreate(t, db, &models.Category{Name: "Fruit", Color: categoryPalette[0]})

	body, _ := json.Marshal(map[string]string{"name": "Fruit"})
	req := httptest.NewRequest(http.MethodPost, "/api/categories", bytes.NewReader(body))
	w := httptest.NewRecorder()
	CategoryResource(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", w.Code)
	}
}

func TestCreateCategoryRequiresName(t *testing.T) {
	withTestDatabase(t)

	body, _ := json.Marshal(map[string]string{"name": "   "})
	req := httptest.NewRequest(http.MethodPost, "/api/categories", bytes.NewReader(body))
	w := httptest.NewRecorder()
	CategoryResource(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestListCategoriesAggregatesUsage(t *testing.T) {
	db := withTestDatabase(t)

	bananas := seedProductGraph(t, db, "Fruit", "Bananas")
	seedProductGraph(t, db, "Household", "Detergent")

	merchant := models.Merchant{Name: "SuperMart"}
	mustCreate(t, db, &merchant)
	receipt := models.Receipt{MerchantID: merchant.ID, PurchaseDate: testDate(t, "2025-11-10")}
	mustCreate(t, db, &receipt)
	mustCreate(t, db, &models.LineItem{
		ReceiptID:           receipt.ID,
		ProductDefinitionID: bananas.ID,
		Price:               dec(t, "1.25"),
		Quantity:            dec(t, "2"),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	w := httptest.NewRecorder()
	CategoryResource(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp []categoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(resp))
	}

	byName := map[string]categoryResponse{}
	for _, row := range resp {
		byName[row.Name] = row
	}
	fruit := byName["Fruit"]
	if fruit.ItemCount != 1 || fruit.ItemPercentage != 100.0 {
		t.Fatalf("unexpected fruit usage: %+v", fruit)
	}
	if got := fruit.TotalSpent.String(); got != "2.5" {
		t.Fatalf("expected fruit total 2.5, got %s", got)
	}
	household := byName["Household"]
	if household.ItemCount != 0 || !household.TotalSpent.IsZero() {
		t.Fatalf("expected household to be zero-filled: %+v", household)
	}
}

func TestListCategoriesHonorsDateFilter(t *testing.T) {
	db := withTestDatabase(t)

	bananas := seedProductGraph(t, db, "Fruit", "Bananas")
	merchant := models.Merchant{Name: "SuperMart"}
	mustCreate(t, db, &merchant)

	inRange := models.Receipt{MerchantID: merchant.ID, PurchaseDate: testDate(t, "2025-11-10")}
	mustCreate(t, db, &inRange)
	outOfRange := models.Receipt{MerchantID: merchant.ID, PurchaseDate: testDate(t, "2025-12-01")}
	mustCreate(t, db, &outOfRange)
	for _, receiptID := range []uint{inRange.ID, outOfRange.ID} {
		mustCreate(t, db, &models.LineItem{
			ReceiptID:           receiptID,
			ProductDefinitionID: bananas.ID,
			Price:               dec(t, "3.00"),
			Quantity:            dec(t, "1"),
		})
	}

	// The end bound is inclusive, so the 2025-11-10 receipt counts.
	req := httptest.NewRequest(http.MethodGet, "/api/categories?start_date=2025-11-01&end_date=2025-11-10", nil)
	w := httptest.NewRecorder()
	CategoryResource(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp []categoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("expected 1 category, got %d", len(resp))
	}
	if resp[0].ItemCount != 1 {
		t.Fatalf("expected only the in-range item, got count %d", resp[0].ItemCount)
	}
	if got := resp[0].TotalSpent.String(); got != "3" {
		t.Fatalf("expected total 3, got %s", got)
	}
}

func TestUpdateCategoryPartialFields(t *testing.T) {
	db := withTestDatabase(t)
	category := models.Category{Name: "Fruit", Color: categoryPalette[0]}
	mustCreate(t, db, &category)

	body, _ := json.Marshal(map[string]string{"color": "#123456"})
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/categories/%d", category.ID), bytes.NewReader(body))
	w := httptest.NewRecorder()
	CategoryResource(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var reloaded models.Category
	if err := db.First(&reloaded, category.ID).Error; err != nil {
		t.Fatalf("failed to reload category: %v", err)
	}
	if reloaded.Name != "Fruit" || reloaded.Color != "#123456" {
		t.Fatalf("unexpected category after update: %+v", reloaded)
	}
}

func TestUpdateCategoryDuplicateNameConflicts(t *testing.T) {
	db := withTestDatabase(t)
	mustCreate(t, db, &models.Category{Name: "Fruit", Color: categoryPalette[0]})
	dairy := models.Category{Name: "Dairy", Color: categoryPalette[1]}
	mustCreate(t, db, &dairy)

	body, _ := json.Marshal(map[string]string{"name": "Fruit"})
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/categories/%d", dairy.ID), bytes.NewReader(body))
	w := httptest.NewRecorder()
	CategoryResource(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", w.Code)
	}
}

func TestDeleteCategoryBlockedWhileReferenced(t *testing.T) {
	db := withTestDatabase(t)
	product := seedProductGraph(t, db, "Fruit", "Bananas")

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/categories/%d", product.CategoryID), nil)
	w := httptest.NewRecorder()
	CategoryResource(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", w.Code)
	}
	var count int64
	if err := db.Model(&models.Category{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count categories: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected category to survive, found %d rows", count)
	}
}

func TestDeleteCategoryRemovesUnreferencedRow(t *testing.T) {
	db := withTestDatabase(t)
	category := models.Category{Name: "Fruit", Color: categoryPalette[0]}
	mustCreate(t, db, &category)

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/categories/%d", category.ID), nil)
	w := httptest.NewRecorder()
	CategoryResource(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}
}

func TestShowCategoryNotFound(t *testing.T) {
	withTestDatabase(t)

	req := httptest.NewRequest(http.MethodGet, "/api/categories/999", nil)
	w := httptest.NewRecorder()
	CategoryResource(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestEnsureCategoryColorsBackfillsPlaceholders(t *testing.T) {
	db := withTestDatabase(t)

	mustCreate(t, db, &models.Category{Name: "Fruit", Color: models.PlaceholderColor})
	mustCreate(t, db, &models.Category{Name: "Dairy", Color: ""})
	mustCreate(t, db, &models.Category{Name: "Custom", Color: "#123456"})

	if err := EnsureCategoryColors(context.Background()); err != nil {
		t.Fatalf("backfill failed: %v", err)
	}

	var categories []models.Category
	if err := db.Order("id asc").Find(&categories).Error; err != nil {
		t.Fatalf("failed to reload categories: %v", err)
	}
	if categories[0].Color != categoryPalette[0] {
		t.Fatalf("expected placeholder to be replaced, got %s", categories[0].Color)
	}
	if categories[1].Color != categoryPalette[1] {
		t.Fatalf("expected empty color to be filled, got %s", categories[1].Color)
	}
	if categories[2].Color != "#123456" {
		t.Fatalf("expected explicit color to be kept, got %s", categories[2].Color)
	}
}
