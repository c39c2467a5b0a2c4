package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	applog "spendshelf/internal/log"
	"spendshelf/models"
)

// categoryPalette is the fixed set of display colors assigned to categories
// in creation order, wrapping around when exhausted.
var categoryPalette = []string{
	"#ef4444", "#f59e0b", "#10b981", "#3b82f6", "#8b5cf6",
	"#14b8a6", "#ec4899", "#f97316", "#06b6d4", "#6366f1",
	"#84cc16", "#a855f7",
}

var (
	errCategoryNameTaken = errors.New("category with this name already exists")
	errCategoryInUse     = errors.New("category is still referenced by product definitions")
)

type categoryCreateRequest struct {
	Name string `json:"name"`
}

type categoryUpdateRequest struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
}

type categoryResponse struct {
	ID             uint            `json:"id"`
	Name           string          `json:"name"`
	Color          string          `json:"color"`
	ItemCount      int64           `json:"item_count"`
	ItemPercentage float64         `json:"item_percentage"`
	TotalSpent     decimal.Decimal `json:"total_spent"`
}

// CategoryResource handles /api/categories and /api/categories/{id}.
func CategoryResource(w http.ResponseWriter, r *http.Request) {
	if database == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	segments := resourceSegments(r, "/api/categories")
	if len(segments) == 0 {
		switch r.Method {
		case http.MethodGet:
			listCategories(w, r)
		case http.MethodPost:
			createCategory(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	categoryID, ok := parseID(segments[0])
	if !ok || len(segments) > 1 {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		showCategory(w, r, categoryID)
	case http.MethodPut:
		updateCategory(w, r, categoryID)
	case http.MethodDelete:
		deleteCategory(w, r, categoryID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type categoryUsageRow struct {
	CategoryID uint
	ItemCount  int64
	TotalSpent decimal.Decimal
}

func listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := parseDateFilter(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var categories []models.Category
	if err := database.WithContext(ctx).Order("id asc").Find(&categories).Error; err != nil {
		applog.Error(ctx, "failed to list categories", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load categories")
		return
	}

	var usage []categoryUsageRow
	q := database.WithContext(ctx).Table("line_items AS li").
		Select("pd.category_id AS category_id, COUNT(li.id) AS item_count, COALESCE(SUM(li.price * li.quantity), 0) AS total_spent").
		Joins("JOIN product_definitions pd ON pd.id = li.product_definition_id").
		Where("li.receipt_id IN (?)", filteredReceipts(ctx, filter, "id")).
		Group("pd.category_id")
	if err := q.Scan(&usage).Error; err != nil {
		applog.Error(ctx, "failed to aggregate category usage", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load categories")
		return
	}

	usageByCategory := make(map[uint]categoryUsageRow, len(usage))
	var totalItems int64
	for _, row := range usage {
		usageByCategory[row.CategoryID] = row
		totalItems += row.ItemCount
	}

	responses := make([]categoryResponse, 0, len(categories))
	for _, category := range categories {
		row := usageByCategory[category.ID]
		percentage := 0.0
		if totalItems > 0 {
			percentage = math.Round(float64(row.ItemCount)/float64(totalItems)*1000) / 10
		}
		responses = append(responses, categoryResponse{
			ID:             category.ID,
			Name:           category.Name,
			Color:          category.Color,
			ItemCount:      row.ItemCount,
			ItemPercentage: percentage,
			TotalSpent:     row.TotalSpent.Round(2),
		})
	}
	writeJSON(w, http.StatusOK, responses)
}

func createCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload categoryCreateRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := strings.TrimSpace(payload.Name)
	if name == "" {
		writeJSONError(w, http.StatusBadRequest, "name is required")
		return
	}

	category := models.Category{Name: name}
	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Category{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return fmt.Errorf("check category name: %w", err)
		}
		if count > 0 {
			return errCategoryNameTaken
		}

		var existing int64
		if err := tx.Model(&models.Category{}).Count(&existing).Error; err != nil {
			return fmt.Errorf("count categories: %w", err)
		}
		category.Color = categoryPalette[existing%int64(len(categoryPalette))]

		if err := tx.Create(&category).Error; err != nil {
			return fmt.Errorf("create category: %w", err)
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, errCategoryNameTaken):
			writeJSONError(w, http.StatusConflict, errCategoryNameTaken.Error())
		case errors.Is(err, gorm.ErrDuplicatedKey):
			writeJSONError(w, http.StatusConflict, errCategoryNameTaken.Error())
		default:
			applog.Error(ctx, "failed to create category", "error", err, "name", name)
			writeJSONError(w, http.StatusInternalServerError, "unable to create category")
		}
		return
	}

	applog.Info(ctx, "category created", "id", category.ID, "name", category.Name, "color", category.Color)
	writeJSON(w, http.StatusCreated, categoryResponse{
		ID:         category.ID,
		Name:       category.Name,
		Color:      category.Color,
		TotalSpent: decimal.Zero,
	})
}

func showCategory(w http.ResponseWriter, r *http.Request, categoryID uint) {
	ctx := r.Context()
	var category models.Category
	if err := database.WithContext(ctx).First(&category, categoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.NotFound(w, r)
			return
		}
		applog.Error(ctx, "failed to load category", "error", err, "id", categoryID)
		writeJSONError(w, http.StatusInternalServerError, "unable to load category")
		return
	}
	writeJSON(w, http.StatusOK, categoryResponse{
		ID:         category.ID,
		Name:       category.Name,
		Color:      category.Color,
		TotalSpent: decimal.Zero,
	})
}

func updateCategory(w http.ResponseWriter, r *http.Request, categoryID uint) {
	ctx := r.Context()

	var payload categoryUpdateRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var category models.Category
	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&category, categoryID).Error; err != nil {
			return err
		}

		updates := map[string]any{}
		if payload.Name != nil {
			name := strings.TrimSpace(*payload.Name)
			if name == "" {
				return fmt.Errorf("name must not be empty: %w", errValidation)
			}
			var count int64
			if err := tx.Model(&models.Category{}).Where("name = ? AND id <> ?", name, categoryID).Count(&count).Error; err != nil {
				return fmt.Errorf("check category name: %w", err)
			}
			if count > 0 {
				return errCategoryNameTaken
			}
			updates["name"] = name
		}
		if payload.Color != nil {
			color := strings.TrimSpace(*payload.Color)
			if color == "" {
				return fmt.Errorf("color must not be empty: %w", errValidation)
			}
			updates["color"] = color
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&category).Updates(updates).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			http.NotFound(w, r)
		case errors.Is(err, errCategoryNameTaken), errors.Is(err, gorm.ErrDuplicatedKey):
			writeJSONError(w, http.StatusConflict, errCategoryNameTaken.Error())
		case errors.Is(err, errValidation):
			writeJSONError(w, http.StatusBadRequest, err.Error())
		default:
			applog.Error(ctx, "failed to update category", "error", err, "id", categoryID)
			writeJSONError(w, http.StatusInternalServerError, "unable to update category")
		}
		return
	}

	writeJSON(w, http.StatusOK, categoryResponse{
		ID:         category.ID,
		Name:       category.Name,
		Color:      category.Color,
		TotalSpent: decimal.Zero,
	})
}

func deleteCategory(w http.ResponseWriter, r *http.Request, categoryID uint) {
	ctx := r.Context()

	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var category models.Category
		if err := tx.First(&category, categoryID).Error; err != nil {
			return err
		}

		var referencing int64
		if err := tx.Model(&models.ProductDefinition{}).Where("category_id = ?", categoryID).Count(&referencing).Error; err != nil {
			return fmt.Errorf("count referencing product definitions: %w", err)
		}
		if referencing > 0 {
			return errCategoryInUse
		}

		return tx.Delete(&category).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			http.NotFound(w, r)
		case errors.Is(err, errCategoryInUse), errors.Is(err, gorm.ErrForeignKeyViolated):
			writeJSONError(w, http.StatusConflict, errCategoryInUse.Error())
		default:
			applog.Error(ctx, "failed to delete category", "error", err, "id", categoryID)
			writeJSONError(w, http.StatusInternalServerError, "unable to delete category")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// EnsureCategoryColors backfills palette colors for rows created before
// automatic assignment, identified by an empty color or the legacy
// placeholder. Runs once at startup; colors assigned at creation are left
// alone.
func EnsureCategoryColors(ctx context.Context) error {
	var categories []models.Category
	if err := database.WithContext(ctx).Order("id asc").Find(&categories).Error; err != nil {
		return fmt.Errorf("load categories: %w", err)
	}

	for idx, category := range categories {
		if category.Color != "" && category.Color != models.PlaceholderColor {
			continue
		}
		color := categoryPalette[idx%len(categoryPalette)]
		if err := database.WithContext(ctx).Model(&category).Update("color", color).Error; err != nil {
			return fmt.Errorf("backfill category color: %w", err)
		}
		applog.Info(ctx, "category color backfilled", "id", category.ID, "color", color)
	}
	return nil
}
