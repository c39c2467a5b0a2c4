package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	applog "spendshelf/internal/log"
	"spendshelf/models"
)

var (
	errMerchantNameTaken   = errors.New("merchant with this name already exists")
	errMerchantHasReceipts = errors.New("merchant still has receipts and cannot be deleted")
)

type merchantCreateRequest struct {
	Name     string  `json:"name"`
	Location *string `json:"location"`
	Notes    *string `json:"notes"`
}

type merchantUpdateRequest struct {
	Name     *string `json:"name"`
	Location *string `json:"location"`
	Notes    *string `json:"notes"`
}

func validMerchantName(name string) bool {
	return name != "" && len(name) <= 100
}

// MerchantResource handles /api/merchants and /api/merchants/{id}.
func MerchantResource(w http.ResponseWriter, r *http.Request) {
	if database == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	segments := resourceSegments(r, "/api/merchants")
	if len(segments) == 0 {
		switch r.Method {
		case http.MethodGet:
			listMerchants(w, r)
		case http.MethodPost:
			createMerchant(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	merchantID, ok := parseID(segments[0])
	if !ok || len(segments) > 1 {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		showMerchant(w, r, merchantID)
	case http.MethodPut:
		updateMerchant(w, r, merchantID)
	case http.MethodDelete:
		deleteMerchant(w, r, merchantID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func listMerchants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var merchants []models.Merchant
	if err := database.WithContext(ctx).Order("name asc").Find(&merchants).Error; err != nil {
		applog.Error(ctx, "failed to list merchants", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load merchants")
		return
	}
	writeJSON(w, http.StatusOK, merchants)
}

func createMerchant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload merchantCreateRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := strings.TrimSpace(payload.Name)
	if !validMerchantName(name) {
		writeJSONError(w, http.StatusBadRequest, "name is required and must be at most 100 characters")
		return
	}

	merchant := models.Merchant{Name: name, Location: payload.Location, Notes: payload.Notes}
	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Merchant{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return fmt.Errorf("check merchant name: %w", err)
		}
		if count > 0 {
			return errMerchantNameTaken
		}
		return tx.Create(&merchant).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, errMerchantNameTaken), errors.Is(err, gorm.ErrDuplicatedKey):
			writeJSONError(w, http.StatusConflict, errMerchantNameTaken.Error())
		default:
			applog.Error(ctx, "failed to create merchant", "error", err, "name", name)
			writeJSONError(w, http.StatusInternalServerError, "unable to create merchant")
		}
		return
	}

	applog.Info(ctx, "merchant created", "id", merchant.ID, "name", merchant.Name)
	writeJSON(w, http.StatusCreated, merchant)
}

func showMerchant(w http.ResponseWriter, r *http.Request, merchantID uint) {
	ctx := r.Context()
	var merchant models.Merchant
	if err := database.WithContext(ctx).First(&merchant, merchantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.NotFound(w, r)
			return
		}
		applog.Error(ctx, "failed to load merchant", "error", err, "id", merchantID)
		writeJSONError(w, http.StatusInternalServerError, "unable to load merchant")
		return
	}
	writeJSON(w, http.StatusOK, merchant)
}

func updateMerchant(w http.ResponseWriter, r *http.Request, merchantID uint) {
	ctx := r.Context()

	var payload merchantUpdateRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var merchant models.Merchant
	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&merchant, merchantID).Error; err != nil {
			return err
		}

		updates := map[string]any{}
		if payload.Name != nil {
			name := strings.TrimSpace(*payload.Name)
			if !validMerchantName(name) {
				return fmt.Errorf("name is required and must be at most 100 characters: %w", errValidation)
			}
			var count int64
			if err := tx.Model(&models.Merchant{}).Where("name = ? AND id <> ?", name, merchantID).Count(&count).Error; err != nil {
				return fmt.Errorf("check merchant name: %w", err)
			}
			if count > 0 {
				return errMerchantNameTaken
			}
			updates["name"] = name
		}
		if payload.Location != nil {
			updates["location"] = *payload.Location
		}
		if payload.Notes != nil {
			updates["notes"] = *payload.Notes
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&merchant).Updates(updates).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			http.NotFound(w, r)
		case errors.Is(err, errMerchantNameTaken), errors.Is(err, gorm.ErrDuplicatedKey):
			writeJSONError(w, http.StatusConflict, errMerchantNameTaken.Error())
		case errors.Is(err, errValidation):
			writeJSONError(w, http.StatusBadRequest, err.Error())
		default:
			applog.Error(ctx, "failed to update merchant", "error", err, "id", merchantID)
			writeJSONError(w, http.StatusInternalServerError, "unable to update merchant")
		}
		return
	}

	writeJSON(w, http.StatusOK, merchant)
}

func deleteMerchant(w http.ResponseWriter, r *http.Request, merchantID uint) {
	ctx := r.Context()

	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var merchant models.Merchant
		if err := tx.First(&merchant, merchantID).Error; err != nil {
			return err
		}

		// Explicit pre-check instead of relying on a constraint violation,
		// so the caller gets a clear conflict message.
		var receipts int64
		if err := tx.Model(&models.Receipt{}).Where("merchant_id = ?", merchantID).Count(&receipts).Error; err != nil {
			return fmt.Errorf("count merchant receipts: %w", err)
		}
		if receipts > 0 {
			return fmt.Errorf("%w: %d receipts", errMerchantHasReceipts, receipts)
		}

		return tx.Delete(&merchant).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			http.NotFound(w, r)
		case errors.Is(err, errMerchantHasReceipts), errors.Is(err, gorm.ErrForeignKeyViolated):
			writeJSONError(w, http.StatusConflict, errMerchantHasReceipts.Error())
		default:
			applog.Error(ctx, "failed to delete merchant", "error", err, "id", merchantID)
			writeJSONError(w, http.StatusInternalServerError, "unable to delete merchant")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
