package tourvisor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/t3m14/tours-sub000/internal/domain"
	"github.com/t3m14/tours-sub000/internal/search"
)

const testSecret = "s3cr3t-pass"

// syncBuffer guards log output written from the retry loop.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestClient(t *testing.T, handler http.HandlerFunc, logs *syncBuffer) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var logger *slog.Logger
	if logs != nil {
		logger = slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return NewClient(Config{
		BaseURL:  server.URL,
		Login:    "agent@example.com",
		Password: testSecret,
		Client:   server.Client(),
		Retry: search.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
		},
		Logger: logger,
		Now: func() time.Time {
			return time.Date(2025, time.March, 10, 15, 30, 0, 0, time.UTC)
		},
	})
}

func TestSubmitSearchRejectsMissingDepartureBeforeAnyRequest(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("123456789"))
	}, nil)

	_, err := client.SubmitSearch(context.Background(), domain.SearchCriteria{Country: 4})
	if !errors.Is(err, domain.ErrInvalidCriteria) {
		t.Fatalf("expected ErrInvalidCriteria, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no remote calls, got %d", hits.Load())
	}
}

func TestSubmitSearchAppliesDefaultsAndReadsBareID(t *testing.T) {
	var query atomicQuery
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search.php" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		query.store(r.URL.Query().Encode())
		_, _ = w.Write([]byte(" 5830148812 \n"))
	}, nil)

	id, err := client.SubmitSearch(context.Background(), domain.SearchCriteria{Departure: 1, Country: 4})
	if err != nil {
		t.Fatalf("SubmitSearch: %v", err)
	}
	if id != "5830148812" {
		t.Fatalf("unexpected id %q", id)
	}
	got := query.load()
	for _, want := range []string{
		"datefrom=17.03.2025",
		"dateto=24.03.2025",
		"nightsfrom=7",
		"nightsto=10",
		"adults=2",
		"departure=1",
		"country=4",
		"format=xml",
		"authpass=" + testSecret,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in query %q", want, got)
		}
	}
}

func TestPrepareCriteriaFixesInvertedRange(t *testing.T) {
	now := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	prepared, err := PrepareCriteria(domain.SearchCriteria{
		Departure:  1,
		Country:    4,
		DateFrom:   "20.04.2025",
		DateTo:     "2025-04-02",
		NightsFrom: 9,
		NightsTo:   5,
	}, now)
	if err != nil {
		t.Fatalf("PrepareCriteria: %v", err)
	}
	if prepared.DateFrom != "20.04.2025" || prepared.DateTo != "27.04.2025" {
		t.Fatalf("unexpected date range %s..%s", prepared.DateFrom, prepared.DateTo)
	}
	if prepared.NightsTo != 9 {
		t.Fatalf("expected nights range fixed to 9, got %d", prepared.NightsTo)
	}

	if _, err := PrepareCriteria(domain.SearchCriteria{Departure: 1}, now); !errors.Is(err, domain.ErrInvalidCriteria) {
		t.Fatalf("expected missing country to be rejected, got %v", err)
	}
	if _, err := PrepareCriteria(domain.SearchCriteria{Departure: 1, Country: 4, DateFrom: "tomorrow"}, now); !errors.Is(err, domain.ErrInvalidCriteria) {
		t.Fatalf("expected bad date to be rejected, got %v", err)
	}
}

func TestPollStatusRetriesThenReportsRemoteUnavailable(t *testing.T) {
	var hits atomic.Int32
	logs := &syncBuffer{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, logs)

	_, err := client.PollStatus(context.Background(), "42")
	if !errors.Is(err, domain.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
	if strings.Contains(logs.String(), testSecret) {
		t.Fatalf("credentials leaked into logs: %s", logs.String())
	}
	if !strings.Contains(logs.String(), "authpass") {
		t.Fatalf("expected redacted url in logs, got %s", logs.String())
	}

	diagnostics := client.Diagnostics()
	if len(diagnostics) != 1 || diagnostics[0].Operation != opStatus {
		t.Fatalf("unexpected diagnostics %+v", diagnostics)
	}
	if diagnostics[0].ConsecutiveFailures != 3 || diagnostics[0].TotalRequests != 3 || diagnostics[0].LastFailureAt == nil {
		t.Fatalf("unexpected status diagnostics %+v", diagnostics[0])
	}
}

func TestPollStatusRecoversAfterTransientFailure(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.URL.Query().Get("type") != "status" || r.URL.Query().Get("requestid") != "42" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`<data><status><state>searching</state><hotelsfound>6</hotelsfound><progress>40</progress></status></data>`))
	}, nil)

	status, err := client.PollStatus(context.Background(), "42")
	if err != nil {
		t.Fatalf("PollStatus: %v", err)
	}
	if status.HotelsFound != 6 || status.Progress != 40 || status.Finished() {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestPollStatusMalformedBodyDegradesToDefault(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<data><status>`))
	}, nil)

	status, err := client.PollStatus(context.Background(), "42")
	if err != nil {
		t.Fatalf("malformed body must not fail, got %v", err)
	}
	if status != domain.DefaultSearchStatus() {
		t.Fatalf("expected default status, got %+v", status)
	}
}

func TestFetchResultPageSendsPagination(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("type") != "result" || q.Get("page") != "2" || q.Get("onpage") != "10" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<data><status><state>finished</state><hotelsfound>11</hotelsfound></status>
<result><hotel><hotelcode>11</hotelcode><tours><tour><price>900</price></tour></tours></hotel></result></data>`))
	}, nil)

	page, err := client.FetchResultPage(context.Background(), "42", 2, 10)
	if err != nil {
		t.Fatalf("FetchResultPage: %v", err)
	}
	if !page.Status.Finished() || page.Status.HotelsFound != 11 {
		t.Fatalf("unexpected embedded status %+v", page.Status)
	}
	if len(page.Hotels) != 1 || page.Hotels[0].Code != "11" || page.Hotels[0].Price != 900 {
		t.Fatalf("unexpected hotels %+v", page.Hotels)
	}
}

func TestContinueSearchKeepsIDWhenRemoteOmitsOne(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("continue") != "42" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`<result><page>2</page></result>`))
	}, nil)

	id, err := client.ContinueSearch(context.Background(), "42")
	if err != nil {
		t.Fatalf("ContinueSearch: %v", err)
	}
	if id != "42" {
		t.Fatalf("expected original id, got %q", id)
	}
}

func TestRedactURL(t *testing.T) {
	got := redactURL("http://tourvisor.ru/xml/search.php?authlogin=me&authpass=" + testSecret + "&country=4")
	if strings.Contains(got, testSecret) || strings.Contains(got, "=me") {
		t.Fatalf("credentials not redacted: %s", got)
	}
	if !strings.Contains(got, "country=4") {
		t.Fatalf("non-secret params must survive: %s", got)
	}
}

type atomicQuery struct {
	mu    sync.Mutex
	value string
}

func (q *atomicQuery) store(v string) {
	q.mu.Lock()
	q.value = v
	q.mu.Unlock()
}

func (q *atomicQuery) load() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.value
}
