// Package ingest loads master data and receipts from a JSON dataset into
// the database. Existing rows are resolved by their natural keys (name,
// abbreviation, barcode) and missing rows are created, so re-running the
// same dataset is idempotent.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	applog "spendshelf/internal/log"
	"spendshelf/models"
)

// Dataset mirrors the JSON layout accepted by the loader. Every section
// is optional.
type Dataset struct {
	Categories       []CategoryRecord `json:"categories"`
	MeasurementUnits []UnitRecord     `json:"measurement_units"`
	ProductList      []ProductRecord  `json:"product_list"`
	Merchants        []MerchantRecord `json:"merchants"`
	Receipts         []ReceiptRecord  `json:"receipts"`
}

type CategoryRecord struct {
	Name string `json:"name"`
}

type UnitRecord struct {
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

type ProductRecord struct {
	Name            string  `json:"name"`
	Barcode         *string `json:"barcode"`
	Category        string  `json:"category"`
	MeasurementUnit string  `json:"measurement_unit"`
}

type MerchantRecord struct {
	Name     string  `json:"name"`
	Location *string `json:"location"`
}

type ReceiptRecord struct {
	Merchant     string           `json:"merchant"`
	PurchaseDate string           `json:"purchase_date"`
	Barcode      *string          `json:"barcode"`
	Products     []LineItemRecord `json:"products"`
}

type LineItemRecord struct {
	ProductList    string          `json:"product_list"`
	ProductBarcode string          `json:"barcode_product_list"`
	Category       string          `json:"category"`
	Unit           string          `json:"measurement_unit"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	Description    *string         `json:"description"`
}

// Summary counts the records each section contributed.
type Summary struct {
	Categories int
	Units      int
	Products   int
	Merchants  int
	Receipts   int
	LineItems  int
}

const dateLayout = "2006-01-02"

// cache holds per-run natural-key lookups so repeated references resolve
// without another query.
type cache struct {
	categories      map[string]*models.Category
	unitsByAbbrev   map[string]*models.MeasurementUnit
	productsByName  map[string]*models.ProductDefinition
	productsByCode  map[string]*models.ProductDefinition
	merchantsByName map[string]*models.Merchant
}

func newCache() *cache {
	return &cache{
		categories:      map[string]*models.Category{},
		unitsByAbbrev:   map[string]*models.MeasurementUnit{},
		productsByName:  map[string]*models.ProductDefinition{},
		productsByCode:  map[string]*models.ProductDefinition{},
		merchantsByName: map[string]*models.Merchant{},
	}
}

// LoadFile reads a dataset from a JSON file and loads it.
func LoadFile(ctx context.Context, database *gorm.DB, path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return Load(ctx, database, f)
}

// Load decodes a dataset and writes it inside a single transaction. A
// failure anywhere leaves the database untouched.
func Load(ctx context.Context, database *gorm.DB, r io.Reader) (Summary, error) {
	var dataset Dataset
	if err := json.NewDecoder(r).Decode(&dataset); err != nil {
		return Summary{}, fmt.Errorf("decode dataset: %w", err)
	}

	summary := Summary{}
	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resolved := newCache()

		for _, record := range dataset.Categories {
			if _, err := getOrCreateCategory(tx, resolved, record.Name); err != nil {
				return err
			}
			summary.Categories++
		}
		for _, record := range dataset.MeasurementUnits {
			if _, err := getOrCreateUnit(tx, resolved, record.Name, record.Abbreviation); err != nil {
				return err
			}
			summary.Units++
		}
		for _, record := range dataset.ProductList {
			barcode := ""
			if record.Barcode != nil {
				barcode = *record.Barcode
			}
			if _, err := getOrCreateProduct(tx, resolved, record.Name, record.Category, record.MeasurementUnit, barcode); err != nil {
				return err
			}
			summary.Products++
		}
		for _, record := range dataset.Merchants {
			if _, err := getOrCreateMerchant(tx, resolved, record.Name, record.Location); err != nil {
				return err
			}
			summary.Merchants++
		}
		for _, record := range dataset.Receipts {
			items, err := loadReceipt(tx, resolved, record)
			if err != nil {
				return err
			}
			summary.Receipts++
			summary.LineItems += items
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	applog.Info(ctx, "dataset loaded",
		"categories", summary.Categories,
		"units", summary.Units,
		"products", summary.Products,
		"merchants", summary.Merchants,
		"receipts", summary.Receipts,
		"line_items", summary.LineItems,
	)
	return summary, nil
}

func getOrCreateCategory(tx *gorm.DB, resolved *cache, name string) (*models.Category, error) {
	key := strings.TrimSpace(name)
	if key == "" {
		return nil, fmt.Errorf("category requires a name")
	}
	if category, ok := resolved.categories[key]; ok {
		return category, nil
	}

	category := &models.Category{}
	err := tx.Where("name = ?", key).First(category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		category = &models.Category{Name: key, Color: models.PlaceholderColor}
		err = tx.Create(category).Error
	}
	if err != nil {
		return nil, fmt.Errorf("resolve category %q: %w", key, err)
	}
	resolved.categories[key] = category
	return category, nil
}

func getOrCreateUnit(tx *gorm.DB, resolved *cache, name, abbreviation string) (*models.MeasurementUnit, error) {
	abbrev := strings.TrimSpace(abbreviation)
	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" || abbrev == "" {
		return nil, fmt.Errorf("measurement unit requires name and abbreviation")
	}
	if unit, ok := resolved.unitsByAbbrev[abbrev]; ok {
		return unit, nil
	}

	unit := &models.MeasurementUnit{}
	err := tx.Where("abbreviation = ? OR name = ?", abbrev, trimmedName).First(unit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		unit = &models.MeasurementUnit{Name: trimmedName, Abbreviation: abbrev}
		err = tx.Create(unit).Error
	}
	if err != nil {
		return nil, fmt.Errorf("resolve measurement unit %q: %w", abbrev, err)
	}
	resolved.unitsByAbbrev[unit.Abbreviation] = unit
	return unit, nil
}

func getOrCreateProduct(tx *gorm.DB, resolved *cache, name, categoryName, unitAbbrev, barcode string) (*models.ProductDefinition, error) {
	key := strings.TrimSpace(name)
	if key == "" {
		return nil, fmt.Errorf("product requires a name")
	}
	if product, ok := resolved.productsByName[key]; ok {
		return product, nil
	}

	product := &models.ProductDefinition{}
	err := tx.Where("name = ?", key).First(product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Creating needs enough context to satisfy both foreign keys.
		if strings.TrimSpace(categoryName) == "" || strings.TrimSpace(unitAbbrev) == "" {
			return nil, fmt.Errorf("cannot create product %q without category and measurement unit", key)
		}
		category, catErr := getOrCreateCategory(tx, resolved, categoryName)
		if catErr != nil {
			return nil, catErr
		}
		unit := &models.MeasurementUnit{}
		if unitErr := tx.Where("abbreviation = ?", strings.TrimSpace(unitAbbrev)).First(unit).Error; unitErr != nil {
			if errors.Is(unitErr, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("measurement unit %q does not exist, define it in measurement_units first", unitAbbrev)
			}
			return nil, fmt.Errorf("resolve measurement unit %q: %w", unitAbbrev, unitErr)
		}

		product = &models.ProductDefinition{
			Name:              key,
			CategoryID:        category.ID,
			MeasurementUnitID: unit.ID,
		}
		if trimmed := strings.TrimSpace(barcode); trimmed != "" {
			product.Barcode = &trimmed
		}
		err = tx.Create(product).Error
	}
	if err != nil {
		return nil, fmt.Errorf("resolve product %q: %w", key, err)
	}

	resolved.productsByName[key] = product
	if product.Barcode != nil {
		resolved.productsByCode[*product.Barcode] = product
	}
	return product, nil
}

func getOrCreateMerchant(tx *gorm.DB, resolved *cache, name string, location *string) (*models.Merchant, error) {
	key := strings.TrimSpace(name)
	if key == "" {
		return nil, fmt.Errorf("merchant requires a name")
	}
	if merchant, ok := resolved.merchantsByName[key]; ok {
		return merchant, nil
	}

	merchant := &models.Merchant{}
	err := tx.Where("name = ?", key).First(merchant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		merchant = &models.Merchant{Name: key, Location: location}
		err = tx.Create(merchant).Error
	}
	if err != nil {
		return nil, fmt.Errorf("resolve merchant %q: %w", key, err)
	}
	resolved.merchantsByName[key] = merchant
	return merchant, nil
}

func loadReceipt(tx *gorm.DB, resolved *cache, record ReceiptRecord) (int, error) {
	merchant, err := getOrCreateMerchant(tx, resolved, record.Merchant, nil)
	if err != nil {
		return 0, err
	}
	purchaseDate, err := time.Parse(dateLayout, strings.TrimSpace(record.PurchaseDate))
	if err != nil {
		return 0, fmt.Errorf("invalid purchase_date %q, expected YYYY-MM-DD", record.PurchaseDate)
	}

	receipt := models.Receipt{
		MerchantID:   merchant.ID,
		PurchaseDate: purchaseDate,
		Barcode:      record.Barcode,
		TotalPrice:   decimal.Zero,
	}
	if err := tx.Create(&receipt).Error; err != nil {
		return 0, fmt.Errorf("create receipt for %q: %w", record.Merchant, err)
	}

	total := decimal.Zero
	for _, entry := range record.Products {
		product, err := resolveLineItemProduct(tx, resolved, entry)
		if err != nil {
			return 0, err
		}
		if entry.Price.IsNegative() {
			return 0, fmt.Errorf("product %q: price must not be negative", product.Name)
		}
		if !entry.Quantity.IsPositive() {
			return 0, fmt.Errorf("product %q: quantity must be greater than zero", product.Name)
		}

		item := models.LineItem{
			ReceiptID:           receipt.ID,
			ProductDefinitionID: product.ID,
			Price:               entry.Price,
			Quantity:            entry.Quantity,
			Description:         entry.Description,
		}
		if err := tx.Create(&item).Error; err != nil {
			return 0, fmt.Errorf("create line item for %q: %w", product.Name, err)
		}
		total = total.Add(entry.Price.Mul(entry.Quantity))
	}

	if err := tx.Model(&receipt).Update("total_price", total.Round(2)).Error; err != nil {
		return 0, fmt.Errorf("store receipt total: %w", err)
	}
	return len(record.Products), nil
}

// resolveLineItemProduct finds the product a line item refers to, by
// barcode when given, otherwise by name. A barcode reference must already
// exist; a name reference may create the product when the entry carries
// category and unit context.
func resolveLineItemProduct(tx *gorm.DB, resolved *cache, entry LineItemRecord) (*models.ProductDefinition, error) {
	if barcode := strings.TrimSpace(entry.ProductBarcode); barcode != "" {
		if product, ok := resolved.productsByCode[barcode]; ok {
			return product, nil
		}
		product := &models.ProductDefinition{}
		if err := tx.Where("barcode = ?", barcode).First(product).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("product with barcode %q not found, define it in product_list first", barcode)
			}
			return nil, fmt.Errorf("resolve product by barcode %q: %w", barcode, err)
		}
		resolved.productsByCode[barcode] = product
		resolved.productsByName[product.Name] = product
		return product, nil
	}

	if strings.TrimSpace(entry.ProductList) == "" {
		return nil, fmt.Errorf("line item requires product_list name or barcode_product_list")
	}
	return getOrCreateProduct(tx, resolved, entry.ProductList, entry.Category, entry.Unit, "")
}
