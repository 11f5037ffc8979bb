package redis

import (
	"context"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewFromAddr(mr.Addr())
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestGetMissingKey(t *testing.T) {
	c, _ := newTestClient(t)
	data, ok, err := c.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok || data != nil {
		t.Errorf("expected absent key, got ok=%v data=%q", ok, data)
	}
}

func TestSetManyAndMGet(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	if err := c.SetMany(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")}); err != nil {
		t.Fatalf("SetMany: %v", err)
	}
	vals, err := c.MGet(ctx, "a", "missing", "b")
	if err != nil {
		t.Fatalf("MGet: %v", err)
	}
	if string(vals[0]) != "1" || vals[1] != nil || string(vals[2]) != "2" {
		t.Errorf("unexpected MGet result %q", vals)
	}
}

func TestScanPrefixEscapesGlob(t *testing.T) {
	c, mr := newTestClient(t)
	for _, k := range []string{"m*:freq:a", "m*:idx:a", "mx:freq:a", "m:freq:b"} {
		mr.Set(k, "x")
	}
	keys, err := c.ScanPrefix(context.Background(), "m*:")
	if err != nil {
		t.Fatalf("ScanPrefix: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "m*:freq:a" || keys[1] != "m*:idx:a" {
		t.Errorf("ScanPrefix returned %v", keys)
	}
}

func TestExistsAndDel(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	mr.Set("k", "v")
	ok, err := c.Exists(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	if err := c.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if mr.Exists("k") {
		t.Error("key still present after Del")
	}
}

func TestEscapeGlob(t *testing.T) {
	if got := EscapeGlob(`a*b?[c]\`); got != `a\*b\?\[c\]\\` {
		t.Errorf("EscapeGlob = %q", got)
	}
}
