package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	applog "spendshelf/internal/log"
	"spendshelf/models"
)

var (
	errReceiptMerchant = errors.New("referenced merchant does not exist")
	errItemProduct     = errors.New("referenced product definition does not exist")
)

type receiptCreateRequest struct {
	MerchantID   uint    `json:"merchant_id"`
	PurchaseDate string  `json:"purchase_date"`
	Barcode      *string `json:"barcode"`
}

type receiptUpdateRequest struct {
	MerchantID   *uint   `json:"merchant_id"`
	PurchaseDate *string `json:"purchase_date"`
	Barcode      *string `json:"barcode"`
}

type lineItemRequest struct {
	ProductDefinitionID uint             `json:"product_definition_id"`
	Price               *decimal.Decimal `json:"price"`
	Quantity            *decimal.Decimal `json:"quantity"`
	Description         *string          `json:"description"`
}

// receiptView shapes a receipt for JSON responses. PurchaseDate is
// serialized as a plain calendar date, not a timestamp.
type receiptView struct {
	models.Receipt
	PurchaseDate string `json:"purchase_date"`
}

func viewReceipt(receipt models.Receipt) receiptView {
	return receiptView{
		Receipt:      receipt,
		PurchaseDate: receipt.PurchaseDate.Format(dateLayout),
	}
}

func viewReceipts(receipts []models.Receipt) []receiptView {
	views := make([]receiptView, 0, len(receipts))
	for _, receipt := range receipts {
		views = append(views, viewReceipt(receipt))
	}
	return views
}

// receiptTotal sums price*quantity over the given line items and rounds
// the result to two decimal places. Per-item products keep their full
// precision until the final rounding step.
func receiptTotal(items []models.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price.Mul(item.Quantity))
	}
	return total.Round(2)
}

// refreshReceiptTotal recomputes and stores the cached total for a receipt
// after its line items changed.
func refreshReceiptTotal(tx *gorm.DB, receiptID uint) error {
	var items []models.LineItem
	if err := tx.Where("receipt_id = ?", receiptID).Find(&items).Error; err != nil {
		return fmt.Errorf("load line items: %w", err)
	}
	return tx.Model(&models.Receipt{}).
		Where("id = ?", receiptID).
		Update("total_price", receiptTotal(items)).Error
}

// ReceiptResource handles /api/receipts, /api/receipts/{id},
// /api/receipts/{id}/items[/{itemID}] and /api/receipts/{id}/photo.
func ReceiptResource(w http.ResponseWriter, r *http.Request) {
	if database == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	segments := resourceSegments(r, "/api/receipts")
	if len(segments) == 0 {
		switch r.Method {
		case http.MethodGet:
			listReceipts(w, r)
		case http.MethodPost:
			createReceipt(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	receiptID, ok := parseID(segments[0])
	if !ok {
		http.NotFound(w, r)
		return
	}

	if len(segments) >= 2 {
		switch segments[1] {
		case "photo":
			if len(segments) != 2 {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			uploadReceiptPhoto(w, r, receiptID)
		case "items":
			lineItemResource(w, r, receiptID, segments[2:])
		default:
			http.NotFound(w, r)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		showReceipt(w, r, receiptID)
	case http.MethodPut:
		updateReceipt(w, r, receiptID)
	case http.MethodDelete:
		deleteReceipt(w, r, receiptID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func listReceipts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := parseDateFilter(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	query := database.WithContext(ctx).
		Preload("Merchant").
		Preload("LineItems").
		Order("purchase_date desc, id desc")
	if raw := r.URL.Query().Get("merchant_id"); raw != "" {
		merchantID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid merchant_id")
			return
		}
		query = query.Where("merchant_id = ?", merchantID)
	}
	if barcode := strings.TrimSpace(r.URL.Query().Get("barcode")); barcode != "" {
		query = query.Where("barcode = ?", barcode)
	}
	if filter.Start != nil {
		query = query.Where("purchase_date >= ?", *filter.Start)
	}
	if filter.End != nil {
		query = query.Where("purchase_date <= ?", *filter.End)
	}

	var receipts []models.Receipt
	if err := query.Find(&receipts).Error; err != nil {
		applog.Error(ctx, "failed to list receipts", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load receipts")
		return
	}
	// Same as showReceipt: the cached column can lag behind item edits, so
	// recompute from the preloaded line items on read.
	for i := range receipts {
		receipts[i].TotalPrice = receiptTotal(receipts[i].LineItems)
	}
	writeJSON(w, http.StatusOK, viewReceipts(receipts))
}

func createReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload receiptCreateRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.MerchantID == 0 {
		writeJSONError(w, http.StatusBadRequest, "merchant_id is required")
		return
	}
	purchaseDate, err := parseDate(payload.PurchaseDate)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "purchase_date must be formatted as YYYY-MM-DD")
		return
	}

	var barcode *string
	if payload.Barcode != nil {
		trimmed := strings.TrimSpace(*payload.Barcode)
		if trimmed != "" {
			barcode = &trimmed
		}
	}

	receipt := models.Receipt{
		MerchantID:   payload.MerchantID,
		PurchaseDate: purchaseDate,
		Barcode:      barcode,
		TotalPrice:   decimal.Zero,
	}
	err = database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Merchant{}).Where("id = ?", payload.MerchantID).Count(&count).Error; err != nil {
			return fmt.Errorf("check merchant: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("%w: id %d", errReceiptMerchant, payload.MerchantID)
		}
		return tx.Create(&receipt).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, errReceiptMerchant):
			writeJSONError(w, http.StatusBadRequest, err.Error())
		default:
			applog.Error(ctx, "failed to create receipt", "error", err, "merchant_id", payload.MerchantID)
			writeJSONError(w, http.StatusInternalServerError, "unable to create receipt")
		}
		return
	}

	applog.Info(ctx, "receipt created", "id", receipt.ID, "merchant_id", receipt.MerchantID)
	writeJSON(w, http.StatusCreated, viewReceipt(receipt))
}

func showReceipt(w http.ResponseWriter, r *http.Request, receiptID uint) {
	ctx := r.Context()
	var receipt models.Receipt
	if err := database.WithContext(ctx).
		Preload("Merchant").
		Preload("LineItems").
		Preload("LineItems.ProductDefinition").
		First(&receipt, receiptID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.NotFound(w, r)
			return
		}
		applog.Error(ctx, "failed to load receipt", "error", err, "id", receiptID)
		writeJSONError(w, http.StatusInternalServerError, "unable to load receipt")
		return
	}
	// The cached column can lag behind item edits made outside the API,
	// so recompute from the line items on read.
	receipt.TotalPrice = receiptTotal(receipt.LineItems)
	writeJSON(w, http.StatusOK, viewReceipt(receipt))
}

func updateReceipt(w http.ResponseWriter, r *http.Request, receiptID uint) {
	ctx := r.Context()

	var payload receiptUpdateRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var receipt models.Receipt
	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&receipt, receiptID).Error; err != nil {
			return err
		}

		updates := map[string]any{}
		if payload.MerchantID != nil {
			var count int64
			if err := tx.Model(&models.Merchant{}).Where("id = ?", *payload.MerchantID).Count(&count).Error; err != nil {
				return fmt.Errorf("check merchant: %w", err)
			}
			if count == 0 {
				return fmt.Errorf("%w: id %d", errReceiptMerchant, *payload.MerchantID)
			}
			updates["merchant_id"] = *payload.MerchantID
		}
		if payload.PurchaseDate != nil {
			purchaseDate, err := parseDate(*payload.PurchaseDate)
			if err != nil {
				return fmt.Errorf("purchase_date must be formatted as YYYY-MM-DD: %w", errValidation)
			}
			updates["purchase_date"] = purchaseDate
		}
		if payload.Barcode != nil {
			barcode := strings.TrimSpace(*payload.Barcode)
			if barcode == "" {
				updates["barcode"] = nil
			} else {
				updates["barcode"] = barcode
			}
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&receipt).Updates(updates).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			http.NotFound(w, r)
		case errors.Is(err, errReceiptMerchant), errors.Is(err, errValidation):
			writeJSONError(w, http.StatusBadRequest, err.Error())
		default:
			applog.Error(ctx, "failed to update receipt", "error", err, "id", receiptID)
			writeJSONError(w, http.StatusInternalServerError, "unable to update receipt")
		}
		return
	}

	var items []models.LineItem
	if err := database.WithContext(ctx).Where("receipt_id = ?", receiptID).Find(&items).Error; err != nil {
		applog.Error(ctx, "failed to load line items", "error", err, "receipt_id", receiptID)
		writeJSONError(w, http.StatusInternalServerError, "unable to load receipt")
		return
	}
	receipt.TotalPrice = receiptTotal(items)
	writeJSON(w, http.StatusOK, viewReceipt(receipt))
}

func deleteReceipt(w http.ResponseWriter, r *http.Request, receiptID uint) {
	ctx := r.Context()

	var photoPath *string
	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var receipt models.Receipt
		if err := tx.First(&receipt, receiptID).Error; err != nil {
			return err
		}
		photoPath = receipt.PhotoPath

		// Line items belong to exactly one receipt, so removing the
		// receipt removes them too.
		if err := tx.Where("receipt_id = ?", receiptID).Delete(&models.LineItem{}).Error; err != nil {
			return fmt.Errorf("delete line items: %w", err)
		}
		return tx.Delete(&receipt).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			http.NotFound(w, r)
		default:
			applog.Error(ctx, "failed to delete receipt", "error", err, "id", receiptID)
			writeJSONError(w, http.StatusInternalServerError, "unable to delete receipt")
		}
		return
	}

	if photoPath != nil && photos != nil {
		photos.Remove(ctx, *photoPath)
	}

	w.WriteHeader(http.StatusNoContent)
}

func lineItemResource(w http.ResponseWriter, r *http.Request, receiptID uint, segments []string) {
	if len(segments) == 0 {
		switch r.Method {
		case http.MethodGet:
			listLineItems(w, r, receiptID)
		case http.MethodPost:
			createLineItem(w, r, receiptID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}
	if len(segments) > 1 {
		http.NotFound(w, r)
		return
	}

	itemID, ok := parseID(segments[0])
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodPut:
		updateLineItem(w, r, receiptID, itemID)
	case http.MethodDelete:
		deleteLineItem(w, r, receiptID, itemID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func listLineItems(w http.ResponseWriter, r *http.Request, receiptID uint) {
	ctx := r.Context()

	var receipt models.Receipt
	if err := database.WithContext(ctx).First(&receipt, receiptID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.NotFound(w, r)
			return
		}
		applog.Error(ctx, "failed to load receipt", "error", err, "id", receiptID)
		writeJSONError(w, http.StatusInternalServerError, "unable to load line items")
		return
	}

	var items []models.LineItem
	if err := database.WithContext(ctx).
		Preload("ProductDefinition").
		Where("receipt_id = ?", receiptID).
		Order("id asc").
		Find(&items).Error; err != nil {
		applog.Error(ctx, "failed to list line items", "error", err, "receipt_id", receiptID)
		writeJSONError(w, http.StatusInternalServerError, "unable to load line items")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// validateLineItemAmounts enforces a non-negative price and a strictly
// positive quantity.
func validateLineItemAmounts(price, quantity decimal.Decimal) error {
	if price.IsNegative() {
		return fmt.Errorf("price must not be negative: %w", errValidation)
	}
	if !quantity.IsPositive() {
		return fmt.Errorf("quantity must be greater than zero: %w", errValidation)
	}
	return nil
}

func createLineItem(w http.ResponseWriter, r *http.Request, receiptID uint) {
	ctx := r.Context()

	var payload lineItemRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.ProductDefinitionID == 0 || payload.Price == nil || payload.Quantity == nil {
		writeJSONError(w, http.StatusBadRequest, "product_definition_id, price and quantity are required")
		return
	}
	if err := validateLineItemAmounts(*payload.Price, *payload.Quantity); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	item := models.LineItem{
		ReceiptID:           receiptID,
		ProductDefinitionID: payload.ProductDefinitionID,
		Price:               *payload.Price,
		Quantity:            *payload.Quantity,
		Description:         payload.Description,
	}
	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var receipt models.Receipt
		if err := tx.First(&receipt, receiptID).Error; err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&models.ProductDefinition{}).Where("id = ?", payload.ProductDefinitionID).Count(&count).Error; err != nil {
			return fmt.Errorf("check product definition: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("%w: id %d", errItemProduct, payload.ProductDefinitionID)
		}
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		return refreshReceiptTotal(tx, receiptID)
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			http.NotFound(w, r)
		case errors.Is(err, errItemProduct):
			writeJSONError(w, http.StatusBadRequest, err.Error())
		default:
			applog.Error(ctx, "failed to create line item", "error", err, "receipt_id", receiptID)
			writeJSONError(w, http.StatusInternalServerError, "unable to create line item")
		}
		return
	}

	writeJSON(w, http.StatusCreated, item)
}

func updateLineItem(w http.ResponseWriter, r *http.Request, receiptID, itemID uint) {
	ctx := r.Context()

	var payload lineItemRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var item models.LineItem
	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("receipt_id = ?", receiptID).First(&item, itemID).Error; err != nil {
			return err
		}

		updates := map[string]any{}
		if payload.ProductDefinitionID != 0 {
			var count int64
			if err := tx.Model(&models.ProductDefinition{}).Where("id = ?", payload.ProductDefinitionID).Count(&count).Error; err != nil {
				return fmt.Errorf("check product definition: %w", err)
			}
			if count == 0 {
				return fmt.Errorf("%w: id %d", errItemProduct, payload.ProductDefinitionID)
			}
			updates["product_definition_id"] = payload.ProductDefinitionID
		}
		price := item.Price
		quantity := item.Quantity
		if payload.Price != nil {
			price = *payload.Price
		}
		if payload.Quantity != nil {
			quantity = *payload.Quantity
		}
		if err := validateLineItemAmounts(price, quantity); err != nil {
			return err
		}
		if payload.Price != nil {
			updates["price"] = *payload.Price
		}
		if payload.Quantity != nil {
			updates["quantity"] = *payload.Quantity
		}
		if payload.Description != nil {
			description := strings.TrimSpace(*payload.Description)
			if description == "" {
				updates["description"] = nil
			} else {
				updates["description"] = description
			}
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&item).Updates(updates).Error; err != nil {
			return err
		}
		return refreshReceiptTotal(tx, receiptID)
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			http.NotFound(w, r)
		case errors.Is(err, errItemProduct), errors.Is(err, errValidation):
			writeJSONError(w, http.StatusBadRequest, err.Error())
		default:
			applog.Error(ctx, "failed to update line item", "error", err, "receipt_id", receiptID, "item_id", itemID)
			writeJSONError(w, http.StatusInternalServerError, "unable to update line item")
		}
		return
	}

	writeJSON(w, http.StatusOK, item)
}

func deleteLineItem(w http.ResponseWriter, r *http.Request, receiptID, itemID uint) {
	ctx := r.Context()

	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.LineItem
		if err := tx.Where("receipt_id = ?", receiptID).First(&item, itemID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&item).Error; err != nil {
			return err
		}
		return refreshReceiptTotal(tx, receiptID)
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			http.NotFound(w, r)
		default:
			applog.Error(ctx, "failed to delete line item", "error", err, "receipt_id", receiptID, "item_id", itemID)
			writeJSONError(w, http.StatusInternalServerError, "unable to delete line item")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
