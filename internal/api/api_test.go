package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/opensource-finance/fraudlens/internal/batch"
	"github.com/opensource-finance/fraudlens/internal/bus"
	"github.com/opensource-finance/fraudlens/internal/cache"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/scoring"
	"github.com/opensource-finance/fraudlens/internal/session"
)

const batchHeader = "Amount,Currency,Country,Usual_Country,Merchant_Category,Channel,Hour,Card_Present,Card_ID\n"

// createTestServer creates a server backed by in-memory cache and bus.
func createTestServer(t *testing.T) (*Server, *bus.ChannelBus) {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
		MaxBodyBytes: 4096,
	}

	engine, err := scoring.NewEngine(domain.DefaultScoringConfig())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	store := cache.NewLRUCache(100)
	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { _ = eventBus.Close() })

	sessions := session.NewManager(engine, store, domain.SessionConfig{TTL: time.Hour, MaxHistory: 10}, nil)
	processor := batch.NewProcessor(engine, batch.WithWorkers(2))

	return NewServer(cfg, engine, sessions, processor, store, eventBus, "test-v1"), eventBus
}

func scoreBody(device string) map[string]any {
	return map[string]any{
		"amount":           1500,
		"currency":         "usd",
		"country":          "US",
		"usualCountry":     "NG",
		"merchantCategory": "crypto",
		"channel":          "POS",
		"hour":             12,
		"cardPresent":      true,
		"deviceId":         device,
	}
}

func doJSON(t *testing.T, s *Server, method, path, sessionID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(SessionIDHeader, sessionID)
	}

	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	return resp
}

func TestScoreEndpoint(t *testing.T) {
	server, eventBus := createTestServer(t)

	t.Run("SuccessfulScore", func(t *testing.T) {
		events := make(chan domain.ScoredEvent, 1)
		sub, _ := eventBus.Subscribe(context.Background(), domain.TopicTransactionScored, func(ctx context.Context, msg *domain.Message) error {
			var ev domain.ScoredEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				return err
			}
			events <- ev
			return nil
		})
		defer sub.Unsubscribe()

		rr := doJSON(t, server, http.MethodPost, "/score", "s1", scoreBody("D1"))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp ScoreResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Score != 75 {
			t.Errorf("expected score 75, got %d", resp.Score)
		}
		if resp.Label != "High" || resp.Color != "red" {
			t.Errorf("expected High/red, got %s/%s", resp.Label, resp.Color)
		}
		if len(resp.Reasons) != 3 {
			t.Errorf("expected 3 reasons, got %v", resp.Reasons)
		}
		if resp.ID == "" {
			t.Error("expected id in response")
		}
		if resp.Metadata.Version != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp.Metadata.Version)
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}

		select {
		case ev := <-events:
			if ev.ID != resp.ID || ev.SessionID != "s1" || ev.Mode != domain.ModeInteractive {
				t.Errorf("unexpected event: %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for scored event")
		}
	})

	t.Run("NewDeviceAcrossCalls", func(t *testing.T) {
		_ = doJSON(t, server, http.MethodPost, "/score", "dev", scoreBody("D1"))
		rr := doJSON(t, server, http.MethodPost, "/score", "dev", scoreBody("D2"))

		var resp ScoreResponse
		_ = json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Score != 85 {
			t.Errorf("expected score 85 with new device, got %d", resp.Score)
		}
	})

	t.Run("MissingSessionID", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/score", "", scoreBody(""))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
		if kind := decodeError(t, rr).Kind; kind != "session_required" {
			t.Errorf("expected kind session_required, got %s", kind)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBufferString("not-json"))
		req.Header.Set(SessionIDHeader, "s1")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
		if kind := decodeError(t, rr).Kind; kind != "invalid_input" {
			t.Errorf("expected kind invalid_input, got %s", kind)
		}
	})

	t.Run("InvalidFields", func(t *testing.T) {
		cases := map[string]func(map[string]any){
			"HourOutOfRange":  func(b map[string]any) { b["hour"] = 24 },
			"MissingHour":     func(b map[string]any) { delete(b, "hour") },
			"MissingAmount":   func(b map[string]any) { delete(b, "amount") },
			"NullAmount":      func(b map[string]any) { b["amount"] = nil },
			"UnknownCurrency": func(b map[string]any) { b["currency"] = "EUR" },
			"UnknownChannel":  func(b map[string]any) { b["channel"] = "Mail" },
			"NegativeAmount":  func(b map[string]any) { b["amount"] = -1 },
		}
		for name, mutate := range cases {
			t.Run(name, func(t *testing.T) {
				body := scoreBody("")
				mutate(body)
				rr := doJSON(t, server, http.MethodPost, "/score", "invalid", body)
				if rr.Code != http.StatusBadRequest {
					t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
				}
				if kind := decodeError(t, rr).Kind; kind != "invalid_input" {
					t.Errorf("expected kind invalid_input, got %s", kind)
				}
			})
		}

		// Failed calls are not recorded.
		rr := doJSON(t, server, http.MethodGet, "/history", "invalid", nil)
		var resp HistoryResponse
		_ = json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 0 {
			t.Errorf("expected empty history, got %d", resp.Count)
		}
	})

	t.Run("BodyTooLarge", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/score", strings.NewReader(`{"country":"`+strings.Repeat("x", 8192)+`"}`))
		req.Header.Set(SessionIDHeader, "s1")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("expected status 413, got %d", rr.Code)
		}
	})
}

func TestHistoryEndpoints(t *testing.T) {
	server, _ := createTestServer(t)

	for _, device := range []string{"D1", "D2"} {
		if rr := doJSON(t, server, http.MethodPost, "/score", "h1", scoreBody(device)); rr.Code != http.StatusOK {
			t.Fatalf("score failed: %d", rr.Code)
		}
	}

	t.Run("GetHistory", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/history", "h1", nil)
		var resp HistoryResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 2 || resp.SessionID != "h1" {
			t.Errorf("unexpected history: %+v", resp)
		}
		if resp.Entries[1].Result.Score != 85 {
			t.Errorf("expected second entry score 85, got %d", resp.Entries[1].Result.Score)
		}
	})

	t.Run("ExportHistory", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/history/export", "h1", nil)
		if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
			t.Errorf("expected text/csv, got %s", ct)
		}
		records, err := csv.NewReader(rr.Body).ReadAll()
		if err != nil {
			t.Fatalf("failed to parse csv: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected header plus 2 rows, got %d", len(records))
		}
		if strings.Join(records[0], ",") != strings.Join(batch.HistoryColumns, ",") {
			t.Errorf("unexpected header: %v", records[0])
		}
	})

	t.Run("OtherSessionIsolated", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/history", "h2", nil)
		var resp HistoryResponse
		_ = json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 0 {
			t.Errorf("expected empty history for h2, got %d", resp.Count)
		}
	})

	t.Run("ResetHistory", func(t *testing.T) {
		if rr := doJSON(t, server, http.MethodDelete, "/history", "h1", nil); rr.Code != http.StatusOK {
			t.Fatalf("reset failed: %d", rr.Code)
		}
		rr := doJSON(t, server, http.MethodGet, "/history", "h1", nil)
		var resp HistoryResponse
		_ = json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 0 {
			t.Errorf("expected empty history after reset, got %d", resp.Count)
		}
	})
}

func TestBatchEndpoint(t *testing.T) {
	server, eventBus := createTestServer(t)

	body := batchHeader +
		"1500,USD,US,NG,Crypto,POS,12,yes,C1\n" +
		"50,USD,NG,NG,Groceries,POS,12,yes,C1\n" +
		"abc,USD,NG,NG,Groceries,POS,12,yes,C2\n"

	t.Run("JSON", func(t *testing.T) {
		completed := make(chan domain.BatchCompletedEvent, 1)
		sub, _ := eventBus.Subscribe(context.Background(), domain.TopicBatchCompleted, func(ctx context.Context, msg *domain.Message) error {
			var ev domain.BatchCompletedEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				return err
			}
			completed <- ev
			return nil
		})
		defer sub.Unsubscribe()

		req := httptest.NewRequest(http.MethodPost, "/batch", strings.NewReader(body))
		req.Header.Set("Content-Type", "text/csv")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp BatchResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Rows != 3 || resp.Scored != 2 || resp.Failed != 1 {
			t.Errorf("unexpected counts: rows=%d scored=%d failed=%d", resp.Rows, resp.Scored, resp.Failed)
		}
		if !resp.VelocityChecked {
			t.Error("expected velocity check with Card_ID column")
		}
		if resp.Results[0].Score != 75 || resp.Results[0].VelocityFlag == "" {
			t.Errorf("unexpected first row: %+v", resp.Results[0])
		}
		if resp.Results[2].ErrorKind != "invalid_input" {
			t.Errorf("expected invalid_input on row 2, got %q", resp.Results[2].ErrorKind)
		}

		select {
		case ev := <-completed:
			if ev.ID != resp.BatchID || ev.High != 1 || ev.VelocityFlagged != 2 {
				t.Errorf("unexpected batch event: %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for batch event")
		}
	})

	t.Run("CSVMultipart", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", "transactions.csv")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		_, _ = fw.Write([]byte(body))
		_ = mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/batch?format=csv", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if got := rr.Header().Get("X-Batch-Failed"); got != "1" {
			t.Errorf("expected X-Batch-Failed 1, got %q", got)
		}

		records, err := csv.NewReader(rr.Body).ReadAll()
		if err != nil {
			t.Fatalf("failed to parse csv: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected header plus 2 scored rows, got %d", len(records))
		}
		last := records[0][len(records[0])-1]
		if last != batch.ColumnVelocityFlag {
			t.Errorf("expected last column %s, got %s", batch.ColumnVelocityFlag, last)
		}
	})

	t.Run("MissingRequiredColumn", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/batch", strings.NewReader("Amount,Currency\n1,USD\n"))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
		if kind := decodeError(t, rr).Kind; kind != "missing_required_column" {
			t.Errorf("expected kind missing_required_column, got %s", kind)
		}
	})

	t.Run("MultipartWithoutFile", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		_ = mw.WriteField("other", "x")
		_ = mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/batch", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestLookupEndpoints(t *testing.T) {
	server, _ := createTestServer(t)

	t.Run("ListRules", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/rules", "", nil)
		var resp struct {
			Rules []RuleResponse `json:"rules"`
			Count int            `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 7 || resp.Rules[0].ID != scoring.RuleHighAmountNGN {
			t.Errorf("unexpected rules: %+v", resp)
		}
	})

	t.Run("GetLabel", func(t *testing.T) {
		cases := []struct {
			path   string
			status int
			label  string
		}{
			{"/labels/0", http.StatusOK, "Low"},
			{"/labels/40", http.StatusOK, "Medium"},
			{"/labels/70", http.StatusOK, "High"},
			{"/labels/101", http.StatusBadRequest, ""},
			{"/labels/abc", http.StatusBadRequest, ""},
		}
		for _, tc := range cases {
			rr := doJSON(t, server, http.MethodGet, tc.path, "", nil)
			if rr.Code != tc.status {
				t.Errorf("%s: expected status %d, got %d", tc.path, tc.status, rr.Code)
				continue
			}
			if tc.label == "" {
				continue
			}
			var resp map[string]any
			_ = json.Unmarshal(rr.Body.Bytes(), &resp)
			if resp["label"] != tc.label {
				t.Errorf("%s: expected %s, got %v", tc.path, tc.label, resp["label"])
			}
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server, eventBus := createTestServer(t)

	rr := doJSON(t, server, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", resp["status"])
	}

	_ = eventBus.Close()
	rr = doJSON(t, server, http.MethodGet, "/health", "", nil)
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["status"] != "degraded" {
		t.Errorf("expected degraded after bus close, got %v", resp["status"])
	}
}

func TestMiddleware(t *testing.T) {
	server, _ := createTestServer(t)

	t.Run("CORSPreflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/score", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Errorf("expected status 204 for OPTIONS, got %d", rr.Code)
		}
		if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Error("expected CORS header")
		}
	})

	t.Run("RequestIDPropagation", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "custom-request-id")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Header().Get(RequestIDHeader) != "custom-request-id" {
			t.Errorf("expected request ID to be propagated, got %s", rr.Header().Get(RequestIDHeader))
		}
		if rr.Header().Get(TraceIDHeader) == "" {
			t.Error("expected trace ID header")
		}
	})

	t.Run("SessionIDTooLong", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/history", strings.Repeat("x", session.MaxIDLength+1), nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MetricsExposed", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/metrics", "", nil)
		if !strings.Contains(rr.Body.String(), "fraudlens_http_requests_total") {
			t.Error("expected fraudlens metrics in exposition")
		}
	})

	t.Run("SpanRecorded", func(t *testing.T) {
		recorder := tracetest.NewSpanRecorder()
		otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

		rr := doJSON(t, server, http.MethodGet, "/rules", "", nil)

		spans := recorder.Ended()
		if len(spans) == 0 {
			t.Fatal("expected a recorded span")
		}
		span := spans[len(spans)-1]
		if span.Name() != "GET /rules" {
			t.Errorf("expected span 'GET /rules', got %q", span.Name())
		}
		if got := rr.Header().Get(TraceIDHeader); got != span.SpanContext().TraceID().String() {
			t.Errorf("expected trace header %s, got %s", span.SpanContext().TraceID(), got)
		}
	})
}
