package store

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rigged/internal/market"
)

// Field names shared by the three collections.
const (
	FieldTicker           = "ticker"
	FieldName             = "name"
	FieldCategory         = "category"
	FieldPrice            = "price"
	FieldChangeAmount     = "change_amount"
	FieldChangePercentage = "change_percentage"
	FieldVolume           = "volume"
	FieldLastChange       = "last_change"
	FieldLastUpdated      = "last_updated"
	FieldRawData          = "raw_data"
	FieldValue            = "value"
	FieldUpdatedAt        = "updated_at"
)

// ManipulatorDocumentID is the fixed identifier of the manipulator singleton.
const ManipulatorDocumentID = "current"

// RealQuote is a scraped real-world quote as persisted: numeric fields stay
// string-encoded in the store and are only parsed here.
type RealQuote struct {
	Ticker           string
	Name             string
	Category         string
	Price            string
	ChangeAmount     string
	ChangePercentage string
	Volume           string
	RawData          string
}

func (q RealQuote) Fields(now time.Time) map[string]any {
	return map[string]any{
		FieldTicker:           q.Ticker,
		FieldName:             q.Name,
		FieldCategory:         q.Category,
		FieldPrice:            q.Price,
		FieldChangeAmount:     q.ChangeAmount,
		FieldChangePercentage: q.ChangePercentage,
		FieldVolume:           q.Volume,
		FieldLastUpdated:      now.UTC().Format(time.RFC3339),
		FieldRawData:          q.RawData,
	}
}

// ManipulatorFields encodes the singleton payload.
func ManipulatorFields(value float64, now time.Time) map[string]any {
	return map[string]any{
		FieldValue:     decimal.NewFromFloat(value).Round(2).String(),
		FieldUpdatedAt: now.UTC().Format(time.RFC3339),
	}
}

// ManipulatorValue decodes the singleton payload.
func ManipulatorValue(doc Document) (float64, bool) {
	return floatField(doc.Data, FieldValue)
}

// ChangesFromDocuments normalizes real-world documents into typed changes.
// A document qualifies only when both its price and change-percentage fields
// are present and decimal-like; the percentage may carry a trailing '%'.
// Everything else is skipped and counted, never contributing a zero.
func ChangesFromDocuments(docs []Document) (changes []market.Change, skipped int) {
	for _, doc := range docs {
		price, ok := floatField(doc.Data, FieldPrice)
		if !ok {
			skipped++
			continue
		}
		pct, ok := percentField(doc.Data, FieldChangePercentage)
		if !ok {
			skipped++
			continue
		}
		ticker, _ := doc.Data[FieldTicker].(string)
		changes = append(changes, market.Change{Ticker: ticker, Price: price, Percent: pct})
	}
	return changes, skipped
}

// StockFromDocument normalizes an in-game document. A missing or non-numeric
// price yields PriceOK=false so the applicator can flag the skip.
func StockFromDocument(doc Document) market.Stock {
	s := market.Stock{ID: doc.ID}
	s.Ticker, _ = doc.Data[FieldTicker].(string)
	s.Name, _ = doc.Data[FieldName].(string)
	s.Category, _ = doc.Data[FieldCategory].(string)
	s.Price, s.PriceOK = floatField(doc.Data, FieldPrice)
	if lc, ok := floatField(doc.Data, FieldLastChange); ok {
		s.LastChange = lc
	}
	return s
}

// StockFields encodes an applied stock back into its document shape.
func StockFields(s market.Stock, now time.Time) map[string]any {
	return map[string]any{
		FieldTicker:      s.Ticker,
		FieldName:        s.Name,
		FieldCategory:    s.Category,
		FieldPrice:       decimal.NewFromFloat(s.Price).Round(2).String(),
		FieldLastChange:  decimal.NewFromFloat(s.LastChange).Round(2).String(),
		FieldLastUpdated: now.UTC().Format(time.RFC3339),
	}
}

func floatField(data map[string]any, key string) (float64, bool) {
	v, ok := data[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return d.InexactFloat64(), true
	default:
		return 0, false
	}
}

func percentField(data map[string]any, key string) (float64, bool) {
	v, ok := data[key]
	if !ok {
		return 0, false
	}
	s, ok := v.(string)
	if !ok {
		if f, isFloat := v.(float64); isFloat {
			return f, true
		}
		return 0, false
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}
