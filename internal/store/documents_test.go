package store

import (
	"testing"
	"time"
)

func TestChangesFromDocuments(t *testing.T) {
	docs := []Document{
		{ID: "1", Data: map[string]any{"ticker": "AAPL", "price": "10", "change_percentage": "-1.99%"}},
		{ID: "2", Data: map[string]any{"ticker": "MSFT", "price": "20", "change_percentage": "3.5"}},
		{ID: "3", Data: map[string]any{"ticker": "NOPE", "price": "10"}},
		{ID: "4", Data: map[string]any{"ticker": "BAD", "price": "n/a", "change_percentage": "1.0%"}},
		{ID: "5", Data: map[string]any{"ticker": "JUNK", "price": "5", "change_percentage": "??"}},
	}
	changes, skipped := ChangesFromDocuments(docs)
	if skipped != 3 {
		t.Fatalf("skipped = %d want 3", skipped)
	}
	if len(changes) != 2 {
		t.Fatalf("changes = %d want 2", len(changes))
	}
	if changes[0].Percent != -1.99 || changes[1].Percent != 3.5 {
		t.Fatalf("unexpected percents: %+v", changes)
	}
}

func TestStockFromDocument(t *testing.T) {
	ok := StockFromDocument(Document{ID: "d1", Data: map[string]any{
		"ticker": "COBOLT", "name": "Cobalt Dynamics", "category": "technology",
		"price": "130.00", "last_change": "0.5",
	}})
	if !ok.PriceOK || ok.Price != 130 || ok.LastChange != 0.5 {
		t.Fatalf("unexpected stock: %+v", ok)
	}

	bad := StockFromDocument(Document{ID: "d2", Data: map[string]any{
		"ticker": "NIMBUS", "price": "not-a-price",
	}})
	if bad.PriceOK {
		t.Fatalf("non-numeric price must not parse")
	}
}

func TestManipulatorRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fields := ManipulatorFields(1.754999, now)
	if fields[FieldValue] != "1.75" {
		t.Fatalf("value = %v want 1.75", fields[FieldValue])
	}
	v, ok := ManipulatorValue(Document{ID: ManipulatorDocumentID, Data: fields})
	if !ok || v != 1.75 {
		t.Fatalf("decoded %v ok=%v", v, ok)
	}
}
