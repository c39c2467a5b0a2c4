package handlers

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/shopspring/decimal"

	applog "spendshelf/internal/log"
)

// categorySpendingRow is one row of the spending-by-category report. Every
// category appears, including those with no matching purchases.
type categorySpendingRow struct {
	CategoryID   uint            `json:"category_id"`
	CategoryName string          `json:"category_name"`
	Color        string          `json:"color"`
	TotalSpent   decimal.Decimal `json:"total_spent"`
}

// merchantReportRow is one row of the enriched merchant report.
// LastPurchaseDate is scanned as text: MAX() over a date column is a
// computed expression, so sqlite reports no column type and the driver
// refuses to scan it into time.Time. Both backends render the value with
// a YYYY-MM-DD prefix, which the view extracts.
type merchantReportRow struct {
	MerchantID       uint            `json:"merchant_id"`
	MerchantName     string          `json:"merchant_name"`
	Location         *string         `json:"location"`
	ReceiptCount     int64           `json:"receipt_count"`
	LineItemCount    int64           `json:"line_item_count"`
	TotalSpent       decimal.Decimal `json:"total_spent"`
	LastPurchaseDate sql.NullString  `json:"-"`
}

type merchantReportView struct {
	merchantReportRow
	LastPurchaseDate *string `json:"last_purchase_date"`
}

// dashboardKPIs summarizes overall spending. Receipts without any line
// items carry no spending and are not counted.
type dashboardKPIs struct {
	TotalSpent          decimal.Decimal `json:"total_spent"`
	ReceiptCount        int64           `json:"receipt_count"`
	LineItemCount       int64           `json:"line_item_count"`
	AverageReceiptTotal decimal.Decimal `json:"average_receipt_total"`
}

// SpendingByCategoryReport handles GET /api/reports/spending-by-category.
func SpendingByCategoryReport(w http.ResponseWriter, r *http.Request) {
	if database == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	filter, err := parseDateFilter(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	rows, err := buildCategorySpending(ctx, filter)
	if err != nil {
		applog.Error(ctx, "failed to build category spending report", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to build report")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func buildCategorySpending(ctx context.Context, filter dateFilter) ([]categorySpendingRow, error) {
	// Line items are matched against the pre-filtered receipt set inside
	// the join condition. Filtering after the join would turn the outer
	// join back into an inner one and drop the zero rows.
	inRange := filteredReceipts(ctx, filter, "id")

	rows := []categorySpendingRow{}
	err := database.WithContext(ctx).
		Table("categories").
		Select("categories.id AS category_id, categories.name AS category_name, categories.color AS color, COALESCE(SUM(li.price * li.quantity), 0) AS total_spent").
		Joins("LEFT JOIN product_definitions pd ON pd.category_id = categories.id").
		Joins("LEFT JOIN line_items li ON li.product_definition_id = pd.id AND li.receipt_id IN (?)", inRange).
		Group("categories.id, categories.name, categories.color").
		Order("total_spent DESC, categories.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].TotalSpent = rows[i].TotalSpent.Round(2)
	}
	return rows, nil
}

// EnrichedMerchantReport handles GET /api/reports/enriched-merchants.
func EnrichedMerchantReport(w http.ResponseWriter, r *http.Request) {
	if database == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	filter, err := parseDateFilter(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	rows, err := buildMerchantReport(ctx, filter)
	if err != nil {
		applog.Error(ctx, "failed to build merchant report", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to build report")
		return
	}

	views := make([]merchantReportView, 0, len(rows))
	for _, row := range rows {
		view := merchantReportView{merchantReportRow: row}
		if formatted, ok := reportDate(row.LastPurchaseDate); ok {
			view.LastPurchaseDate = &formatted
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

func buildMerchantReport(ctx context.Context, filter dateFilter) ([]merchantReportRow, error) {
	inRange := filteredReceipts(ctx, filter, "id, merchant_id, purchase_date")

	rows := []merchantReportRow{}
	err := database.WithContext(ctx).
		Table("merchants").
		Select("merchants.id AS merchant_id, merchants.name AS merchant_name, merchants.location AS location, "+
			"COUNT(DISTINCT fr.id) AS receipt_count, COUNT(li.id) AS line_item_count, "+
			"COALESCE(SUM(li.price * li.quantity), 0) AS total_spent, MAX(fr.purchase_date) AS last_purchase_date").
		Joins("LEFT JOIN (?) fr ON fr.merchant_id = merchants.id", inRange).
		Joins("LEFT JOIN line_items li ON li.receipt_id = fr.id").
		Group("merchants.id, merchants.name, merchants.location").
		Order("total_spent DESC, merchants.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].TotalSpent = rows[i].TotalSpent.Round(2)
	}
	return rows, nil
}

// reportDate extracts the calendar date from an aggregated date value.
// sqlite renders stored dates as "2006-01-02 15:04:05..." text and
// postgres values arrive as RFC 3339, so the date is always the first ten
// characters.
func reportDate(raw sql.NullString) (string, bool) {
	if !raw.Valid || len(raw.String) < len(dateLayout) {
		return "", false
	}
	value := raw.String[:len(dateLayout)]
	if _, err := parseDate(value); err != nil {
		return "", false
	}
	return value, true
}

// DashboardKPIReport handles GET /api/reports/dashboard-kpis.
func DashboardKPIReport(w http.ResponseWriter, r *http.Request) {
	if database == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	filter, err := parseDateFilter(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	kpis, err := buildDashboardKPIs(ctx, filter)
	if err != nil {
		applog.Error(ctx, "failed to build dashboard KPIs", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to build report")
		return
	}
	writeJSON(w, http.StatusOK, kpis)
}

func buildDashboardKPIs(ctx context.Context, filter dateFilter) (dashboardKPIs, error) {
	inRange := filteredReceipts(ctx, filter, "id")

	kpis := dashboardKPIs{}
	err := database.WithContext(ctx).
		Table("line_items AS li").
		Select("COALESCE(SUM(li.price * li.quantity), 0) AS total_spent, COUNT(DISTINCT li.receipt_id) AS receipt_count, COUNT(li.id) AS line_item_count").
		Where("li.receipt_id IN (?)", inRange).
		Scan(&kpis).Error
	if err != nil {
		return dashboardKPIs{}, err
	}

	kpis.TotalSpent = kpis.TotalSpent.Round(2)
	if kpis.ReceiptCount > 0 {
		kpis.AverageReceiptTotal = kpis.TotalSpent.
			Div(decimal.NewFromInt(kpis.ReceiptCount)).
			Round(2)
	} else {
		kpis.AverageReceiptTotal = decimal.Zero
	}
	return kpis, nil
}
