package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/finisher/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/autocompleter"
	apperrors "github.com/Adithya-Monish-Kumar-K/finisher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/finisher/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/storage/memstore"
)

const corpus = `{"strings":["big lebowski (usa)","big 3","bigger than big (sumo mack)"]}`

func newServer(t *testing.T, withCache bool) (*http.ServeMux, *cache.QueryCache) {
	t.Helper()
	ac, err := autocompleter.New(memstore.New())
	if err != nil {
		t.Fatal(err)
	}
	var qc *cache.QueryCache
	if withCache {
		mr := miniredis.RunT(t)
		client := pkgredis.NewFromAddr(mr.Addr())
		t.Cleanup(func() { _ = client.Close() })
		qc = cache.New(client, ac.Namespace(), 0)
	}
	mux := http.NewServeMux()
	New(ac, qc, metrics.NewWithRegistry(prometheus.NewRegistry()), 100).Register(mux)
	return mux, qc
}

func do(t *testing.T, mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding %T: %v", v, err)
	}
	return v
}

func TestTrainCorrectGuess(t *testing.T) {
	mux, _ := newServer(t, false)

	rec := do(t, mux, http.MethodPost, "/api/v1/train", corpus)
	if rec.Code != http.StatusOK {
		t.Fatalf("train status = %d: %s", rec.Code, rec.Body)
	}
	if tr := decode[TrainResponse](t, rec); tr.Phrases != 3 || tr.NewPhrases != 3 {
		t.Errorf("train = %+v", tr)
	}

	rec = do(t, mux, http.MethodGet, "/api/v1/correct?q=big+lebewski", "")
	if cr := decode[CorrectResponse](t, rec); strings.Join(cr.Tokens, " ") != "big lebowski" {
		t.Errorf("correct = %+v", cr)
	}

	rec = do(t, mux, http.MethodGet, "/api/v1/guess?token=big&token=lebowski", "")
	gr := decode[GuessResponse](t, rec)
	if len(gr.Results) == 0 || gr.Results[0].Text != "big lebowski (usa)" || gr.Results[0].Score != 2 {
		t.Errorf("guess = %+v", gr)
	}

	rec = do(t, mux, http.MethodGet, "/api/v1/complete?q=sumo+mak&limit=1", "")
	gr = decode[GuessResponse](t, rec)
	if len(gr.Results) != 1 || gr.Results[0].Text != "bigger than big (sumo mack)" {
		t.Errorf("complete = %+v", gr)
	}
	if strings.Join(gr.Tokens, " ") != "sumo mack" {
		t.Errorf("complete tokens = %v", gr.Tokens)
	}
}

func TestEmptyQueries(t *testing.T) {
	mux, _ := newServer(t, false)

	rec := do(t, mux, http.MethodGet, "/api/v1/guess", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	gr := decode[GuessResponse](t, rec)
	if gr.Results == nil || len(gr.Results) != 0 || gr.Tokens == nil {
		t.Errorf("empty guess = %+v", gr)
	}

	rec = do(t, mux, http.MethodGet, "/api/v1/correct?q=anything", "")
	if cr := decode[CorrectResponse](t, rec); len(cr.Tokens) != 1 || cr.Tokens[0] != "anything" {
		t.Errorf("correct on untrained model = %+v", cr)
	}
}

func TestBadRequests(t *testing.T) {
	mux, _ := newServer(t, false)
	tests := []struct {
		name, method, target, body string
		want                       int
	}{
		{"correct without q", http.MethodGet, "/api/v1/correct", "", http.StatusBadRequest},
		{"complete without q", http.MethodGet, "/api/v1/complete", "", http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/api/v1/guess?token=a&limit=0", "", http.StatusBadRequest},
		{"train bad json", http.MethodPost, "/api/v1/train", "{", http.StatusBadRequest},
		{"train empty", http.MethodPost, "/api/v1/train", `{"strings":[]}`, http.StatusBadRequest},
		{"train wrong method", http.MethodGet, "/api/v1/train", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if rec := do(t, mux, tc.method, tc.target, tc.body); rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestCacheInvalidatedByTrainAndBust(t *testing.T) {
	mux, qc := newServer(t, true)
	do(t, mux, http.MethodPost, "/api/v1/train", corpus)

	first := decode[GuessResponse](t, do(t, mux, http.MethodGet, "/api/v1/guess?token=big", ""))
	second := decode[GuessResponse](t, do(t, mux, http.MethodGet, "/api/v1/guess?token=BIG", ""))
	if first.CacheHit || !second.CacheHit || len(second.Results) != 3 {
		t.Fatalf("first hit=%v, second hit=%v (%d results)", first.CacheHit, second.CacheHit, len(second.Results))
	}

	do(t, mux, http.MethodPost, "/api/v1/train", `{"strings":["big fish"]}`)
	third := decode[GuessResponse](t, do(t, mux, http.MethodGet, "/api/v1/guess?token=big", ""))
	if third.CacheHit || len(third.Results) != 4 {
		t.Errorf("after train: hit=%v, %d results", third.CacheHit, len(third.Results))
	}

	rec := do(t, mux, http.MethodPost, "/api/v1/bust", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("bust status = %d", rec.Code)
	}
	after := decode[GuessResponse](t, do(t, mux, http.MethodGet, "/api/v1/guess?token=big", ""))
	if after.CacheHit || len(after.Results) != 0 {
		t.Errorf("after bust: hit=%v, results=%v", after.CacheHit, after.Results)
	}
	if hits, _ := qc.Stats(); hits != 1 {
		t.Errorf("cache hits = %d", hits)
	}
}

type downModel struct{}

func (downModel) Namespace() string { return "finisher" }

func (downModel) Train(context.Context, []string) (indexer.Stats, error) {
	return indexer.Stats{}, errUnavailable
}

func (downModel) CorrectPhrase(context.Context, string) ([]string, error) { return nil, errUnavailable }

func (downModel) CorrectPrefixes(context.Context, string) ([]string, error) { return nil, errUnavailable }

func (downModel) GuessScored(context.Context, []string) ([]ranker.ScoredPhrase, error) {
	return nil, errUnavailable
}

func (downModel) Bust(context.Context) (int, error) { return 0, errUnavailable }

var errUnavailable = apperrors.Unavailable("mget", "finisher:freq:big", errors.New("connection refused"))

func TestBackendUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	New(downModel{}, nil, nil, 0).Register(mux)
	for _, target := range []string{"/api/v1/correct?q=big", "/api/v1/guess?token=big", "/api/v1/complete?q=big"} {
		if rec := do(t, mux, http.MethodGet, target, ""); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d", target, rec.Code)
		}
	}
	if rec := do(t, mux, http.MethodPost, "/api/v1/train", `{"strings":["a"]}`); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("train: status = %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodPost, "/api/v1/bust", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("bust: status = %d", rec.Code)
	}
}
