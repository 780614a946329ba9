package cache

import (
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New[string](10, time.Hour)
	defer c.Close()

	if _, ok := c.Get("a"); ok {
		t.Fatal("empty cache reported a hit")
	}
	c.Set("a", "1")
	got, ok := c.Get("a")
	if !ok || got != "1" {
		t.Errorf("Get(a) = %q, %v; want 1, true", got, ok)
	}
}

func TestCache_EvictsAtCapacity(t *testing.T) {
	c := New[int](2, time.Hour)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("most recent entry was evicted")
	}
}

func TestCache_OverwriteDoesNotEvict(t *testing.T) {
	c := New[int](2, time.Hour)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("b", 3)

	if _, ok := c.Get("a"); !ok {
		t.Error("overwriting an existing key evicted another entry")
	}
	if v, _ := c.Get("b"); v != 3 {
		t.Errorf("Get(b) = %d, want 3", v)
	}
}

func TestCache_Expiry(t *testing.T) {
	c := New[int](2, time.Millisecond)
	defer c.Close()

	c.Set("a", 1)
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Error("expired entry reported as a hit")
	}
}
