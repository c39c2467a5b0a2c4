// Package handlers implements the JSON HTTP API for the expense tracker:
// master-data CRUD, receipts with their line items, photo uploads, and the
// reporting queries behind the dashboard.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	applog "spendshelf/internal/log"
	"spendshelf/internal/uploads"
)

var (
	database *gorm.DB
	photos   *uploads.Store
)

// errValidation marks caller-fixable input problems; handlers map anything
// wrapping it to a 400 response.
var errValidation = errors.New("validation failed")

// Configure wires the shared dependencies used by all handlers.
func Configure(db *gorm.DB, store *uploads.Store) {
	database = db
	photos = store
}

// dateLayout is the calendar-date format used by purchase dates and report
// filters.
const dateLayout = "2006-01-02"

// dateFilter is an optional inclusive [Start, End] range over the receipt
// purchase date. Either bound may be nil, meaning unbounded on that side.
type dateFilter struct {
	Start *time.Time
	End   *time.Time
}

func parseDate(value string) (time.Time, error) {
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return parsed.UTC(), nil
}

func parseDateFilter(r *http.Request) (dateFilter, error) {
	filter := dateFilter{}
	if raw := r.URL.Query().Get("start_date"); raw != "" {
		start, err := parseDate(raw)
		if err != nil {
			return dateFilter{}, err
		}
		filter.Start = &start
	}
	if raw := r.URL.Query().Get("end_date"); raw != "" {
		end, err := parseDate(raw)
		if err != nil {
			return dateFilter{}, err
		}
		filter.End = &end
	}
	return filter, nil
}

// filteredReceipts returns a subquery over receipts restricted to the date
// filter. Dimension tables outer-join against this derived relation so that
// zero-spend rows survive; filtering the joined result on the receipt date
// directly would silently turn the outer join into an inner one.
func filteredReceipts(ctx context.Context, filter dateFilter, columns string) *gorm.DB {
	q := database.WithContext(ctx).Table("receipts").Select(columns)
	if filter.Start != nil {
		q = q.Where("purchase_date >= ?", *filter.Start)
	}
	if filter.End != nil {
		q = q.Where("purchase_date <= ?", *filter.End)
	}
	return q
}

// resourceSegments strips prefix from the request path and splits the rest,
// so "/api/receipts/7/items/3" with prefix "/api/receipts" yields
// ["7", "items", "3"]. An empty slice means the collection itself.
func resourceSegments(r *http.Request, prefix string) []string {
	path := strings.TrimPrefix(r.URL.Path, prefix)
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func parseID(segment string) (uint, bool) {
	value, err := strconv.ParseUint(segment, 10, 64)
	if err != nil || value == 0 {
		return 0, false
	}
	return uint(value), true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		applog.Error(context.Background(), "failed to encode json response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request payload: %w", err)
	}
	return nil
}
