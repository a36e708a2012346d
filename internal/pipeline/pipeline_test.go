package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"rigged/internal/config"
	"rigged/internal/quotes"
	"rigged/internal/store"
)

// fakeStore is an in-memory rendition of the document store's REST surface.
// Creating a document whose ID equals failID is rejected with a 500.
type fakeStore struct {
	mu     sync.Mutex
	cols   map[string][]store.Document
	failID string
}

var filterRE = regexp.MustCompile(`^equal\("([^"]+)","([^"]+)"\)$`)

func newFakeStore() *fakeStore {
	return &fakeStore{cols: map[string][]store.Document{}}
}

func (f *fakeStore) put(col string, doc store.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cols[col] = append(f.cols[col], doc)
}

func (f *fakeStore) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		// v1 databases {db} collections {col} documents [{id}]
		if len(parts) < 6 || parts[0] != "v1" || parts[5] != "documents" {
			t.Fatalf("unexpected store path %s", r.URL.Path)
		}
		col := parts[4]
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case len(parts) == 6 && r.Method == http.MethodGet:
			docs := f.cols[col]
			if q := r.URL.Query().Get("query"); q != "" {
				m := filterRE.FindStringSubmatch(q)
				if m == nil {
					t.Fatalf("unexpected filter %q", q)
				}
				var filtered []store.Document
				for _, d := range docs {
					if v, _ := d.Data[m[1]].(string); v == m[2] {
						filtered = append(filtered, d)
					}
				}
				docs = filtered
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"total": len(docs), "documents": docs})
		case len(parts) == 6 && r.Method == http.MethodPost:
			var in store.Document
			_ = json.NewDecoder(r.Body).Decode(&in)
			if f.failID != "" && in.ID == f.failID {
				http.Error(w, "write rejected", http.StatusInternalServerError)
				return
			}
			f.cols[col] = append(f.cols[col], in)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(in)
		case len(parts) == 7 && r.Method == http.MethodGet:
			for _, d := range f.cols[col] {
				if d.ID == parts[6] {
					_ = json.NewEncoder(w).Encode(d)
					return
				}
			}
			http.Error(w, "not found", http.StatusNotFound)
		case len(parts) == 7 && r.Method == http.MethodPatch:
			var in store.Document
			_ = json.NewDecoder(r.Body).Decode(&in)
			for i, d := range f.cols[col] {
				if d.ID == parts[6] {
					f.cols[col][i].Data = in.Data
					_ = json.NewEncoder(w).Encode(f.cols[col][i])
					return
				}
			}
			http.Error(w, "not found", http.StatusNotFound)
		default:
			t.Fatalf("unexpected store request %s %s", r.Method, r.URL.Path)
		}
	})
}

func testConfig(storeURL, quotesURL string) config.Config {
	var cfg config.Config
	cfg.Store = config.StoreConfig{
		Endpoint:                storeURL,
		ProjectID:               "proj",
		APIKey:                  "secret",
		DatabaseID:              "main",
		RealWorldCollectionID:   "realworld",
		ManipulatorCollectionID: "manipulator",
		GameCollectionID:        "game",
	}
	cfg.Quotes = config.QuotesConfig{
		BaseURL:           quotesURL,
		APIKey:            "demo",
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
	}
	cfg.Pipeline = config.PipelineConfig{
		BatchSize:         4,
		BatchDelay:        0,
		FailoverThreshold: 2,
		SyntheticFallback: true,
	}
	return cfg
}

func globalQuoteHandler(t *testing.T, price, change, changePct string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		if symbol == "" {
			t.Fatalf("missing symbol in %s", r.URL.String())
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Global Quote": map[string]string{
				"01. symbol":             symbol,
				"05. price":              price,
				"06. volume":             "1000",
				"07. latest trading day": "2026-02-27",
				"09. change":             change,
				"10. change percent":     changePct,
			},
		})
	})
}

func TestScrapeUpsertIdempotent(t *testing.T) {
	fs := newFakeStore()
	storeSrv := httptest.NewServer(fs.handler(t))
	defer storeSrv.Close()
	quoteSrv := httptest.NewServer(globalQuoteHandler(t, "189.84", "-1.22", "-0.6386%"))
	defer quoteSrv.Close()

	cfg := testConfig(storeSrv.URL, quoteSrv.URL)
	cfg.Quotes.Watchlist = []string{"AAPL"}
	p := New(cfg, nil)

	first, err := p.Scrape(context.Background())
	if err != nil {
		t.Fatalf("first scrape: %v", err)
	}
	if first.Created != 1 || first.Updated != 0 || first.Failed != 0 {
		t.Fatalf("unexpected first summary: %+v", first)
	}

	second, err := p.Scrape(context.Background())
	if err != nil {
		t.Fatalf("second scrape: %v", err)
	}
	if second.Created != 0 || second.Updated != 1 {
		t.Fatalf("unexpected second summary: %+v", second)
	}
	if n := len(fs.cols["realworld"]); n != 1 {
		t.Fatalf("expected exactly one document for the ticker, got %d", n)
	}
	if first.DataSource != "live" {
		t.Fatalf("data source = %q", first.DataSource)
	}
}

func TestScrapeFallsBackToSynthetic(t *testing.T) {
	fs := newFakeStore()
	storeSrv := httptest.NewServer(fs.handler(t))
	defer storeSrv.Close()
	quoteSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusInternalServerError)
	}))
	defer quoteSrv.Close()

	cfg := testConfig(storeSrv.URL, quoteSrv.URL)
	cfg.Quotes.Watchlist = []string{"AAPL", "MSFT", "GOOGL", "AMZN"}
	p := New(cfg, nil)

	sum, err := p.Scrape(context.Background())
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if sum.DataSource != "synthetic" {
		t.Fatalf("expected synthetic fallback, got %q", sum.DataSource)
	}
	// First failure is tallied; the second trips the failover, so the
	// remaining three symbols are served synthetically.
	if sum.Failed != 1 || sum.Processed != 3 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestScrapeRateLimitedSurfaces(t *testing.T) {
	fs := newFakeStore()
	storeSrv := httptest.NewServer(fs.handler(t))
	defer storeSrv.Close()
	quoteSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer quoteSrv.Close()

	cfg := testConfig(storeSrv.URL, quoteSrv.URL)
	cfg.Quotes.Watchlist = []string{"AAPL"}
	cfg.Pipeline.SyntheticFallback = false
	p := New(cfg, nil)

	_, err := p.Scrape(context.Background())
	if !errors.Is(err, quotes.ErrRateLimited) {
		t.Fatalf("expected rate-limit error, got %v", err)
	}
}

func TestScrapeRejectsDuplicateTickers(t *testing.T) {
	fs := newFakeStore()
	fs.put("realworld", store.Document{ID: "1", Data: map[string]any{"ticker": "AAPL", "price": "10"}})
	fs.put("realworld", store.Document{ID: "2", Data: map[string]any{"ticker": "AAPL", "price": "11"}})
	storeSrv := httptest.NewServer(fs.handler(t))
	defer storeSrv.Close()
	quoteSrv := httptest.NewServer(globalQuoteHandler(t, "189.84", "-1.22", "-0.6386%"))
	defer quoteSrv.Close()

	cfg := testConfig(storeSrv.URL, quoteSrv.URL)
	cfg.Quotes.Watchlist = []string{"AAPL", "MSFT"}
	p := New(cfg, nil)

	sum, err := p.Scrape(context.Background())
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	// The ambiguous ticker is rejected without aborting the run.
	if sum.Failed != 1 || sum.Created != 1 || sum.Updated != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if n := len(fs.cols["realworld"]); n != 3 {
		t.Fatalf("expected the duplicates untouched plus one new document, got %d", n)
	}
}

func TestUpdateManipulatorEndToEnd(t *testing.T) {
	fs := newFakeStore()
	fs.put("realworld", store.Document{ID: "1", Data: map[string]any{"ticker": "AAPL", "price": "10", "change_percentage": "4%"}})
	fs.put("realworld", store.Document{ID: "2", Data: map[string]any{"ticker": "MSFT", "price": "20", "change_percentage": "6%"}})
	storeSrv := httptest.NewServer(fs.handler(t))
	defer storeSrv.Close()

	p := New(testConfig(storeSrv.URL, storeSrv.URL), nil)
	sum, err := p.UpdateManipulator(context.Background())
	if err != nil {
		t.Fatalf("update manipulator: %v", err)
	}
	// avg 5 sits on the high->extreme boundary and resolves via the high
	// tier to exactly 3.0.
	if sum.AverageChange == nil || *sum.AverageChange != 5 {
		t.Fatalf("unexpected average: %+v", sum)
	}
	if sum.Manipulator == nil || *sum.Manipulator != 3.0 {
		t.Fatalf("unexpected manipulator: %+v", sum)
	}

	docs := fs.cols["manipulator"]
	if len(docs) != 1 || docs[0].ID != store.ManipulatorDocumentID {
		t.Fatalf("expected one singleton document, got %+v", docs)
	}
	if v, ok := store.ManipulatorValue(docs[0]); !ok || v != 3.0 {
		t.Fatalf("stored value = %v ok=%v", v, ok)
	}
}

func TestUpdateManipulatorNoValidChanges(t *testing.T) {
	fs := newFakeStore()
	fs.put("realworld", store.Document{ID: "1", Data: map[string]any{"ticker": "AAPL", "price": "10"}})
	storeSrv := httptest.NewServer(fs.handler(t))
	defer storeSrv.Close()

	p := New(testConfig(storeSrv.URL, storeSrv.URL), nil)
	if _, err := p.UpdateManipulator(context.Background()); err == nil {
		t.Fatalf("expected error when no valid changes exist")
	}
}

func TestUpdateMarket(t *testing.T) {
	fs := newFakeStore()
	fs.put("manipulator", store.Document{ID: store.ManipulatorDocumentID, Data: map[string]any{"value": "2.5"}})
	fs.put("game", store.Document{ID: "cobolt", Data: map[string]any{"ticker": "COBOLT", "name": "Cobalt Dynamics", "category": "technology", "price": "100"}})
	fs.put("game", store.Document{ID: "nimbus", Data: map[string]any{"ticker": "NIMBUS", "name": "Nimbus Labs", "category": "technology", "price": "oops"}})
	storeSrv := httptest.NewServer(fs.handler(t))
	defer storeSrv.Close()

	p := New(testConfig(storeSrv.URL, storeSrv.URL), nil)
	sum, err := p.UpdateMarket(context.Background())
	if err != nil {
		t.Fatalf("update market: %v", err)
	}
	if sum.Updated != 1 || sum.Skipped != 1 || sum.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	for _, d := range fs.cols["game"] {
		switch d.ID {
		case "cobolt":
			if d.Data["price"] != "102.5" || d.Data["last_change"] != "2.5" {
				t.Fatalf("unexpected cobolt document: %+v", d.Data)
			}
		case "nimbus":
			if d.Data["price"] != "oops" {
				t.Fatalf("skipped stock must stay untouched: %+v", d.Data)
			}
		}
	}
}

func TestUpdateMarketMissingManipulator(t *testing.T) {
	fs := newFakeStore()
	fs.put("game", store.Document{ID: "cobolt", Data: map[string]any{"ticker": "COBOLT", "price": "100"}})
	storeSrv := httptest.NewServer(fs.handler(t))
	defer storeSrv.Close()

	p := New(testConfig(storeSrv.URL, storeSrv.URL), nil)
	_, err := p.UpdateMarket(context.Background())
	if !errors.Is(err, ErrManipulatorMissing) {
		t.Fatalf("expected ErrManipulatorMissing, got %v", err)
	}
}

func TestSeedIdempotent(t *testing.T) {
	fs := newFakeStore()
	storeSrv := httptest.NewServer(fs.handler(t))
	defer storeSrv.Close()

	p := New(testConfig(storeSrv.URL, storeSrv.URL), nil)
	first, err := p.Seed(context.Background())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if first.Created != len(seedCatalog) || first.Failed != 0 {
		t.Fatalf("unexpected first summary: %+v", first)
	}

	second, err := p.Seed(context.Background())
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if second.Created != 0 || second.Message == "" {
		t.Fatalf("expected a no-op second seed, got %+v", second)
	}
	if n := len(fs.cols["game"]); n != len(seedCatalog) {
		t.Fatalf("expected %d documents, got %d", len(seedCatalog), n)
	}
}

func TestSeedIsolatesSingleFailure(t *testing.T) {
	fs := newFakeStore()
	fs.failID = "cobolt"
	storeSrv := httptest.NewServer(fs.handler(t))
	defer storeSrv.Close()

	p := New(testConfig(storeSrv.URL, storeSrv.URL), nil)
	sum, err := p.Seed(context.Background())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	// One rejected write must not take down the rest of its batch.
	if sum.Failed != 1 || sum.Created != len(seedCatalog)-1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if n := len(fs.cols["game"]); n != len(seedCatalog)-1 {
		t.Fatalf("expected %d documents, got %d", len(seedCatalog)-1, n)
	}
	for _, d := range fs.cols["game"] {
		if d.ID == "cobolt" {
			t.Fatalf("rejected document must not be stored")
		}
	}
}
