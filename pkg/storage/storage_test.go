package storage

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/finisher/pkg/errors"
)

func TestCodecRoundTrip(t *testing.T) {
	values := []Value{
		Count(0),
		Count(42),
		Count(1 << 40),
		Set(nil),
		NewSet("lebowski", "big", "big"),
		Phrase{Text: "Big Lebowski (USA)", Tokens: []string{"big", "lebowski", "usa"}, Seq: 7},
		Phrase{Text: "x"},
	}
	for _, v := range values {
		data, err := Encode(v)
		if err != nil {
			t.Fatalf("Encode(%v): %v", v, err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode(%v): %v", v, err)
		}
		if !Equal(got, v) {
			t.Errorf("round trip mismatch: got %#v, want %#v", got, v)
		}
		again, err := Encode(got)
		if err != nil {
			t.Fatalf("re-Encode: %v", err)
		}
		if string(again) != string(data) {
			t.Errorf("encode(decode(x)) != x for %#v", v)
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	cases := map[string][]byte{
		"empty":       nil,
		"bad version": {9, 0x80},
		"not msgpack": {codecVersion, 0xc1},
	}
	for name, data := range cases {
		if _, err := Decode(data); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestNewSetNormalizes(t *testing.T) {
	s := NewSet("b", "a", "b", "c")
	if len(s) != 3 || s[0] != "a" || s[2] != "c" {
		t.Errorf("NewSet = %v", s)
	}
	if !s.Contains("b") || s.Contains("z") {
		t.Errorf("Contains misbehaves on %v", s)
	}
	u := s.Union("z", "a")
	if len(u) != 4 || u[3] != "z" {
		t.Errorf("Union = %v", u)
	}
	if len(s) != 3 {
		t.Errorf("Union mutated receiver: %v", s)
	}
}

func TestAsConversions(t *testing.T) {
	if c, err := AsCount("k", nil); err != nil || c != 0 {
		t.Errorf("AsCount(nil) = %v, %v", c, err)
	}
	if _, err := AsCount("k", NewSet("a")); !errors.Is(err, apperrors.ErrMalformedValue) {
		t.Errorf("expected malformed for set-as-count, got %v", err)
	}
	if _, err := AsSet("k", Count(1)); !errors.Is(err, apperrors.ErrMalformedValue) {
		t.Errorf("expected malformed for count-as-set, got %v", err)
	}
	if _, ok, err := AsPhrase("k", nil); ok || err != nil {
		t.Errorf("AsPhrase(nil) = %v, %v", ok, err)
	}
}

type mapStore struct {
	data map[string]Value
	sets int
}

func (m *mapStore) Get(_ context.Context, key string) (Value, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapStore) Set(_ context.Context, key string, v Value) error {
	m.sets++
	m.data[key] = v
	return nil
}

func (m *mapStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *mapStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.data[key]
	return ok, nil
}

func (m *mapStore) Keys(context.Context, string) ([]string, error) { return nil, nil }
func (m *mapStore) Close() error                                   { return nil }

func TestHelpersFallBackToSingleKeyCalls(t *testing.T) {
	ctx := context.Background()
	s := &mapStore{data: map[string]Value{}}
	if err := SetMany(ctx, s, map[string]Value{"a": Count(1), "b": Count(2)}); err != nil {
		t.Fatal(err)
	}
	if s.sets != 2 {
		t.Errorf("expected 2 Set calls, got %d", s.sets)
	}
	vals, err := GetMany(ctx, s, []string{"b", "missing", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(vals[0], Count(2)) || vals[1] != nil || !Equal(vals[2], Count(1)) {
		t.Errorf("GetMany = %v", vals)
	}
}
