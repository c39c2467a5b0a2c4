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
	errUnitNameTaken   = errors.New("measurement unit with this name already exists")
	errUnitAbbrevTaken = errors.New("measurement unit with this abbreviation already exists")
	errUnitInUse       = errors.New("measurement unit is still referenced by product definitions")
)

type measurementUnitCreateRequest struct {
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

type measurementUnitUpdateRequest struct {
	Name         *string `json:"name"`
	Abbreviation *string `json:"abbreviation"`
}

// MeasurementUnitResource handles /api/measurement-units and
// /api/measurement-units/{id}.
func MeasurementUnitResource(w http.ResponseWriter, r *http.Request) {
	if database == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	segments := resourceSegments(r, "/api/measurement-units")
	if len(segments) == 0 {
		switch r.Method {
		case http.MethodGet:
			listMeasurementUnits(w, r)
		case http.MethodPost:
			createMeasurementUnit(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	unitID, ok := parseID(segments[0])
	if !ok || len(segments) > 1 {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		showMeasurementUnit(w, r, unitID)
	case http.MethodPut:
		updateMeasurementUnit(w, r, unitID)
	case http.MethodDelete:
		deleteMeasurementUnit(w, r, unitID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func listMeasurementUnits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var units []models.MeasurementUnit
	if err := database.WithContext(ctx).Order("name asc").Find(&units).Error; err != nil {
		applog.Error(ctx, "failed to list measurement units", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load measurement units")
		return
	}
	writeJSON(w, http.StatusOK, units)
}

func createMeasurementUnit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload measurementUnitCreateRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := strings.TrimSpace(payload.Name)
	abbreviation := strings.TrimSpace(payload.Abbreviation)
	if name == "" || abbreviation == "" {
		writeJSONError(w, http.StatusBadRequest, "name and abbreviation are required")
		return
	}

	unit := models.MeasurementUnit{Name: name, Abbreviation: abbreviation}
	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.MeasurementUnit{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return fmt.Errorf("check unit name: %w", err)
		}
		if count > 0 {
			return errUnitNameTaken
		}
		if err := tx.Model(&models.MeasurementUnit{}).Where("abbreviation = ?", abbreviation).Count(&count).Error; err != nil {
			return fmt.Errorf("check unit abbreviation: %w", err)
		}
		if count > 0 {
			return errUnitAbbrevTaken
		}
		return tx.Create(&unit).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, errUnitNameTaken):
			writeJSONError(w, http.StatusConflict, errUnitNameTaken.Error())
		case errors.Is(err, errUnitAbbrevTaken), errors.Is(err, gorm.ErrDuplicatedKey):
			writeJSONError(w, http.StatusConflict, errUnitAbbrevTaken.Error())
		default:
			applog.Error(ctx, "failed to create measurement unit", "error", err, "name", name)
			writeJSONError(w, http.StatusInternalServerError, "unable to create measurement unit")
		}
		return
	}

	applog.Info(ctx, "measurement unit created", "id", unit.ID, "name", unit.Name)
	writeJSON(w, http.StatusCreated, unit)
}

func showMeasurementUnit(w http.ResponseWriter, r *http.Request, unitID uint) {
	ctx := r.Context()
	var unit models.MeasurementUnit
	if err := database.WithContext(ctx).First(&unit, unitID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.NotFound(w, r)
			return
		}
		applog.Error(ctx, "failed to load measurement unit", "error", err, "id", unitID)
		writeJSONError(w, http.StatusInternalServerError, "unable to load measurement unit")
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

func updateMeasurementUnit(w http.ResponseWriter, r *http.Request, unitID uint) {
	ctx := r.Context()

	var payload measurementUnitUpdateRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var unit models.MeasurementUnit
	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&unit, unitID).Error; err != nil {
			return err
		}

		updates := map[string]any{}
		if payload.Name != nil {
			name := strings.TrimSpace(*payload.Name)
			if name == "" {
				return fmt.Errorf("name must not be empty: %w", errValidation)
			}
			var count int64
			if err := tx.Model(&models.MeasurementUnit{}).Where("name = ? AND id <> ?", name, unitID).Count(&count).Error; err != nil {
				return fmt.Errorf("check unit name: %w", err)
			}
			if count > 0 {
				return errUnitNameTaken
			}
			updates["name"] = name
		}
		if payload.Abbreviation != nil {
			abbreviation := strings.TrimSpace(*payload.Abbreviation)
			if abbreviation == "" {
				return fmt.Errorf("abbreviation must not be empty: %w", errValidation)
			}
			var count int64
			if err := tx.Model(&models.MeasurementUnit{}).Where("abbreviation = ? AND id <> ?", abbreviation, unitID).Count(&count).Error; err != nil {
				return fmt.Errorf("check unit abbreviation: %w", err)
			}
			if count > 0 {
				return errUnitAbbrevTaken
			}
			updates["abbreviation"] = abbreviation
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&unit).Updates(updates).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			http.NotFound(w, r)
		case errors.Is(err, errUnitNameTaken), errors.Is(err, errUnitAbbrevTaken), errors.Is(err, gorm.ErrDuplicatedKey):
			writeJSONError(w, http.StatusConflict, err.Error())
		case errors.Is(err, errValidation):
			writeJSONError(w, http.StatusBadRequest, err.Error())
		default:
			applog.Error(ctx, "failed to update measurement unit", "error", err, "id", unitID)
			writeJSONError(w, http.StatusInternalServerError, "unable to update measurement unit")
		}
		return
	}

	writeJSON(w, http.StatusOK, unit)
}

func deleteMeasurementUnit(w http.ResponseWriter, r *http.Request, unitID uint) {
	ctx := r.Context()

	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var unit models.MeasurementUnit
		if err := tx.First(&unit, unitID).Error; err != nil {
			return err
		}

		var referencing int64
		if err := tx.Model(&models.ProductDefinition{}).Where("measurement_unit_id = ?", unitID).Count(&referencing).Error; err != nil {
			return fmt.Errorf("count referencing product definitions: %w", err)
		}
		if referencing > 0 {
			return errUnitInUse
		}

		return tx.Delete(&unit).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			http.NotFound(w, r)
		case errors.Is(err, errUnitInUse), errors.Is(err, gorm.ErrForeignKeyViolated):
			writeJSONError(w, http.StatusConflict, errUnitInUse.Error())
		default:
			applog.Error(ctx, "failed to delete measurement unit", "error", err, "id", unitID)
			writeJSONError(w, http.StatusInternalServerError, "unable to delete measurement unit")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
