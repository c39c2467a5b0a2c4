package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"

	applog "spendshelf/internal/log"
	"spendshelf/internal/uploads"
	"spendshelf/models"
)

// uploadProductPhoto handles POST /api/products/{id}/photo.
func uploadProductPhoto(w http.ResponseWriter, r *http.Request, productID uint) {
	ctx := r.Context()
	if photos == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "photo storage is not configured")
		return
	}

	var product models.ProductDefinition
	if err := database.WithContext(ctx).First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.NotFound(w, r)
			return
		}
		applog.Error(ctx, "failed to load product definition", "error", err, "id", productID)
		writeJSONError(w, http.StatusInternalServerError, "unable to store photo")
		return
	}

	ref, err := savePhotoUpload(w, r, uploads.KindProduct, fmt.Sprintf("product-%d", productID))
	if err != nil {
		writePhotoError(w, r, err)
		return
	}

	// Copy the previous reference before the update: gorm writes the new
	// value through the model's existing pointer.
	var oldRef string
	if product.PhotoPath != nil {
		oldRef = *product.PhotoPath
	}
	if err := database.WithContext(ctx).Model(&product).Update("photo_path", ref).Error; err != nil {
		applog.Error(ctx, "failed to record product photo", "error", err, "id", productID, "ref", ref)
		photos.Remove(ctx, ref)
		writeJSONError(w, http.StatusInternalServerError, "unable to store photo")
		return
	}
	if oldRef != "" && oldRef != ref {
		photos.Remove(ctx, oldRef)
	}

	writeJSON(w, http.StatusOK, map[string]string{"photo_path": ref})
}

// uploadReceiptPhoto handles POST /api/receipts/{id}/photo.
func uploadReceiptPhoto(w http.ResponseWriter, r *http.Request, receiptID uint) {
	ctx := r.Context()
	if photos == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "photo storage is not configured")
		return
	}

	var receipt models.Receipt
	if err := database.WithContext(ctx).First(&receipt, receiptID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.NotFound(w, r)
			return
		}
		applog.Error(ctx, "failed to load receipt", "error", err, "id", receiptID)
		writeJSONError(w, http.StatusInternalServerError, "unable to store photo")
		return
	}

	ref, err := savePhotoUpload(w, r, uploads.KindReceipt, fmt.Sprintf("receipt-%d", receiptID))
	if err != nil {
		writePhotoError(w, r, err)
		return
	}

	var oldRef string
	if receipt.PhotoPath != nil {
		oldRef = *receipt.PhotoPath
	}
	if err := database.WithContext(ctx).Model(&receipt).Update("photo_path", ref).Error; err != nil {
		applog.Error(ctx, "failed to record receipt photo", "error", err, "id", receiptID, "ref", ref)
		photos.Remove(ctx, ref)
		writeJSONError(w, http.StatusInternalServerError, "unable to store photo")
		return
	}
	if oldRef != "" && oldRef != ref {
		photos.Remove(ctx, oldRef)
	}

	writeJSON(w, http.StatusOK, map[string]string{"photo_path": ref})
}

// savePhotoUpload reads the multipart "file" field from the request and
// hands it to the photo store.
func savePhotoUpload(w http.ResponseWriter, r *http.Request, kind, prefix string) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, uploads.MaxFileSize+4096)
	if err := r.ParseMultipartForm(uploads.MaxFileSize); err != nil {
		return "", fmt.Errorf("parse multipart form: %w: %w", errValidation, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", fmt.Errorf("missing file field: %w", errValidation)
	}
	defer file.Close()

	return photos.Save(r.Context(), kind, prefix, header.Filename, header.Header.Get("Content-Type"), header.Size, file)
}

func writePhotoError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, uploads.ErrUnsupportedType), errors.Is(err, errValidation):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, uploads.ErrTooLarge):
		writeJSONError(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		applog.Error(r.Context(), "failed to store uploaded photo", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to store photo")
	}
}
