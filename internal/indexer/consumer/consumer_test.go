package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/finisher/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/autocompleter"
	apperrors "github.com/Adithya-Monish-Kumar-K/finisher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/storage/memstore"
)

type countingCache struct{ calls int }

func (c *countingCache) Invalidate(context.Context) (int64, error) {
	c.calls++
	return 0, nil
}

func encode(t *testing.T, ev ingestion.TrainingEvent) kafka.Message {
	t.Helper()
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Value: b}
}

func TestHandleMessageTrains(t *testing.T) {
	ctx := context.Background()
	ac, err := autocompleter.New(memstore.New())
	if err != nil {
		t.Fatal(err)
	}
	cache := &countingCache{}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	handle := HandleMessage(ac, Options{Timeout: time.Second, Metrics: m, Cache: cache})

	err = handle(ctx, encode(t, ingestion.TrainingEvent{
		BatchID:   "b1",
		Namespace: "finisher",
		Strings:   []string{"big lebowski (usa)", "big 3", "bigger than big (sumo mack)"},
		Source:    "cli",
	}))
	if err != nil {
		t.Fatal(err)
	}
	got, err := ac.GuessFullStrings(ctx, []string{"lebowski"})
	if err != nil || len(got) != 1 || got[0] != "big lebowski (usa)" {
		t.Errorf("guess after consume = %q, %v", got, err)
	}
	if cache.calls != 1 {
		t.Errorf("cache invalidated %d times", cache.calls)
	}
}

func TestHandleMessageSkipsPoison(t *testing.T) {
	ac, _ := autocompleter.New(memstore.New())
	handle := HandleMessage(ac, Options{})

	if err := handle(context.Background(), kafka.Message{Value: []byte("{oops")}); !errors.Is(err, kafka.ErrPoisonMessage) {
		t.Errorf("garbage: %v", err)
	}
	err := handle(context.Background(), encode(t, ingestion.TrainingEvent{BatchID: "b2", Namespace: "other", Strings: []string{"x"}}))
	if !errors.Is(err, kafka.ErrPoisonMessage) {
		t.Errorf("foreign namespace: %v", err)
	}
}

type stuckModel struct{}

func (stuckModel) Namespace() string { return "finisher" }

func (stuckModel) Train(ctx context.Context, _ []string) (indexer.Stats, error) {
	<-ctx.Done()
	return indexer.Stats{}, ctx.Err()
}

type downModel struct{}

func (downModel) Namespace() string { return "finisher" }

func (downModel) Train(context.Context, []string) (indexer.Stats, error) {
	return indexer.Stats{}, apperrors.Unavailable("mget", "finisher:freq:big", errors.New("connection refused"))
}

func TestHandleMessageFailuresAreRetriable(t *testing.T) {
	ev := ingestion.TrainingEvent{BatchID: "b3", Namespace: "finisher", Strings: []string{"big"}}

	err := HandleMessage(stuckModel{}, Options{Timeout: 10 * time.Millisecond})(context.Background(), encode(t, ev))
	if !errors.Is(err, apperrors.ErrTimeout) || errors.Is(err, kafka.ErrPoisonMessage) {
		t.Errorf("timeout: %v", err)
	}
	err = HandleMessage(downModel{}, Options{})(context.Background(), encode(t, ev))
	if !errors.Is(err, apperrors.ErrBackendUnavailable) || errors.Is(err, kafka.ErrPoisonMessage) {
		t.Errorf("backend down: %v", err)
	}
}
