package blobcache

import (
	"testing"
)

func TestPutThenLookup(t *testing.T) {
	c := Open(t.TempDir())
	data := []byte("shared patch payload")
	const sum = uint32(0xdeadbeef)

	if _, err := c.Put(sum, data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := c.Lookup(sum)
	if !ok {
		t.Fatal("expected lookup hit after Put")
	}
	if string(got) != string(data) {
		t.Fatalf("got %q want %q", got, data)
	}
}

func TestLookupMiss(t *testing.T) {
	c := Open(t.TempDir())
	if _, ok := c.Lookup(123); ok {
		t.Fatal("expected miss on empty cache")
	}
}

func TestPutIsIdempotent(t *testing.T) {
	c := Open(t.TempDir())
	data := []byte("same bytes twice")
	d1, err := c.Put(1, data)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := c.Put(1, data)
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Fatalf("expected stable digest, got %q then %q", d1, d2)
	}
}
