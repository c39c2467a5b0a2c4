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
	errProductNameTaken    = errors.New("product definition with this name already exists")
	errProductBarcodeTaken = errors.New("product definition with this barcode already exists")
	errProductCategory     = errors.New("referenced category does not exist")
	errProductUnit         = errors.New("referenced measurement unit does not exist")
	errProductInUse        = errors.New("product definition is still referenced by receipt line items")
)

type productCreateRequest struct {
	Name              string  `json:"name"`
	Barcode           *string `json:"barcode"`
	CategoryID        uint    `json:"category_id"`
	MeasurementUnitID uint    `json:"measurement_unit_id"`
}

type productUpdateRequest struct {
	Name              *string `json:"name"`
	Barcode           *string `json:"barcode"`
	CategoryID        *uint   `json:"category_id"`
	MeasurementUnitID *uint   `json:"measurement_unit_id"`
}

// ProductDefinitionResource handles /api/products, /api/products/{id} and
// /api/products/{id}/photo.
func ProductDefinitionResource(w http.ResponseWriter, r *http.Request) {
	if database == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	segments := resourceSegments(r, "/api/products")
	if len(segments) == 0 {
		switch r.Method {
		case http.MethodGet:
			listProductDefinitions(w, r)
		case http.MethodPost:
			createProductDefinition(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	productID, ok := parseID(segments[0])
	if !ok {
		http.NotFound(w, r)
		return
	}

	if len(segments) == 2 && segments[1] == "photo" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		uploadProductPhoto(w, r, productID)
		return
	}
	if len(segments) > 1 {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		showProductDefinition(w, r, productID)
	case http.MethodPut:
		updateProductDefinition(w, r, productID)
	case http.MethodDelete:
		deleteProductDefinition(w, r, productID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func listProductDefinitions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var products []models.ProductDefinition
	if err := database.WithContext(ctx).
		Preload("Category").
		Preload("MeasurementUnit").
		Order("name asc").
		Find(&products).Error; err != nil {
		applog.Error(ctx, "failed to list product definitions", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load product definitions")
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// validateProductReferences checks the category and measurement unit a
// product points at actually exist before the row is written.
func validateProductReferences(tx *gorm.DB, categoryID, unitID *uint) error {
	if categoryID != nil {
		var count int64
		if err := tx.Model(&models.Category{}).Where("id = ?", *categoryID).Count(&count).Error; err != nil {
			return fmt.Errorf("check category: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("%w: id %d", errProductCategory, *categoryID)
		}
	}
	if unitID != nil {
		var count int64
		if err := tx.Model(&models.MeasurementUnit{}).Where("id = ?", *unitID).Count(&count).Error; err != nil {
			return fmt.Errorf("check measurement unit: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("%w: id %d", errProductUnit, *unitID)
		}
	}
	return nil
}

func createProductDefinition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload productCreateRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := strings.TrimSpace(payload.Name)
	if name == "" || payload.CategoryID == 0 || payload.MeasurementUnitID == 0 {
		writeJSONError(w, http.StatusBadRequest, "name, category_id and measurement_unit_id are required")
		return
	}

	var barcode *string
	if payload.Barcode != nil {
		trimmed := strings.TrimSpace(*payload.Barcode)
		if trimmed != "" {
			barcode = &trimmed
		}
	}

	product := models.ProductDefinition{
		Name:              name,
		Barcode:           barcode,
		CategoryID:        payload.CategoryID,
		MeasurementUnitID: payload.MeasurementUnitID,
	}
	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ProductDefinition{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return fmt.Errorf("check product name: %w", err)
		}
		if count > 0 {
			return errProductNameTaken
		}
		if barcode != nil {
			if err := tx.Model(&models.ProductDefinition{}).Where("barcode = ?", *barcode).Count(&count).Error; err != nil {
				return fmt.Errorf("check product barcode: %w", err)
			}
			if count > 0 {
				return errProductBarcodeTaken
			}
		}
		if err := validateProductReferences(tx, &payload.CategoryID, &payload.MeasurementUnitID); err != nil {
			return err
		}
		return tx.Create(&product).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, errProductNameTaken), errors.Is(err, errProductBarcodeTaken), errors.Is(err, gorm.ErrDuplicatedKey):
			writeJSONError(w, http.StatusConflict, err.Error())
		case errors.Is(err, errProductCategory), errors.Is(err, errProductUnit):
			writeJSONError(w, http.StatusBadRequest, err.Error())
		default:
			applog.Error(ctx, "failed to create product definition", "error", err, "name", name)
			writeJSONError(w, http.StatusInternalServerError, "unable to create product definition")
		}
		return
	}

	applog.Info(ctx, "product definition created", "id", product.ID, "name", product.Name)
	writeJSON(w, http.StatusCreated, product)
}

func showProductDefinition(w http.ResponseWriter, r *http.Request, productID uint) {
	ctx := r.Context()
	var product models.ProductDefinition
	if err := database.WithContext(ctx).
		Preload("Category").
		Preload("MeasurementUnit").
		First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.NotFound(w, r)
			return
		}
		applog.Error(ctx, "failed to load product definition", "error", err, "id", productID)
		writeJSONError(w, http.StatusInternalServerError, "unable to load product definition")
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func updateProductDefinition(w http.ResponseWriter, r *http.Request, productID uint) {
	ctx := r.Context()

	var payload productUpdateRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var product models.ProductDefinition
	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&product, productID).Error; err != nil {
			return err
		}

		updates := map[string]any{}
		if payload.Name != nil {
			name := strings.TrimSpace(*payload.Name)
			if name == "" {
				return fmt.Errorf("name must not be empty: %w", errValidation)
			}
			var count int64
			if err := tx.Model(&models.ProductDefinition{}).Where("name = ? AND id <> ?", name, productID).Count(&count).Error; err != nil {
				return fmt.Errorf("check product name: %w", err)
			}
			if count > 0 {
				return errProductNameTaken
			}
			updates["name"] = name
		}
		if payload.Barcode != nil {
			barcode := strings.TrimSpace(*payload.Barcode)
			if barcode == "" {
				updates["barcode"] = nil
			} else {
				var count int64
				if err := tx.Model(&models.ProductDefinition{}).Where("barcode = ? AND id <> ?", barcode, productID).Count(&count).Error; err != nil {
					return fmt.Errorf("check product barcode: %w", err)
				}
				if count > 0 {
					return errProductBarcodeTaken
				}
				updates["barcode"] = barcode
			}
		}
		if err := validateProductReferences(tx, payload.CategoryID, payload.MeasurementUnitID); err != nil {
			return err
		}
		if payload.CategoryID != nil {
			updates["category_id"] = *payload.CategoryID
		}
		if payload.MeasurementUnitID != nil {
			updates["measurement_unit_id"] = *payload.MeasurementUnitID
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&product).Updates(updates).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			http.NotFound(w, r)
		case errors.Is(err, errProductNameTaken), errors.Is(err, errProductBarcodeTaken), errors.Is(err, gorm.ErrDuplicatedKey):
			writeJSONError(w, http.StatusConflict, err.Error())
		case errors.Is(err, errProductCategory), errors.Is(err, errProductUnit), errors.Is(err, errValidation):
			writeJSONError(w, http.StatusBadRequest, err.Error())
		default:
			applog.Error(ctx, "failed to update product definition", "error", err, "id", productID)
			writeJSONError(w, http.StatusInternalServerError, "unable to update product definition")
		}
		return
	}

	writeJSON(w, http.StatusOK, product)
}

func deleteProductDefinition(w http.ResponseWriter, r *http.Request, productID uint) {
	ctx := r.Context()

	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.ProductDefinition
		if err := tx.First(&product, productID).Error; err != nil {
			return err
		}

		var referencing int64
		if err := tx.Model(&models.LineItem{}).Where("product_definition_id = ?", productID).Count(&referencing).Error; err != nil {
			return fmt.Errorf("count referencing line items: %w", err)
		}
		if referencing > 0 {
			return errProductInUse
		}

		return tx.Delete(&product).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			http.NotFound(w, r)
		case errors.Is(err, errProductInUse), errors.Is(err, gorm.ErrForeignKeyViolated):
			writeJSONError(w, http.StatusConflict, errProductInUse.Error())
		default:
			applog.Error(ctx, "failed to delete product definition", "error", err, "id", productID)
			writeJSONError(w, http.StatusInternalServerError, "unable to delete product definition")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
