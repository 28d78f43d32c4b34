package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/johnrirwin/nordicwire/internal/models"
)

func TestNewMemory(t *testing.T) {
	c := NewMemory(time.Minute)
	defer c.Stop()

	if c.entries == nil {
		t.Fatal("NewMemory() returned cache with nil entries map")
	}
	if c.ttl != time.Minute {
		t.Errorf("NewMemory() ttl = %v, want %v", c.ttl, time.Minute)
	}
}

func TestMemoryCache_SetAndGet(t *testing.T) {
	c := NewMemory(time.Minute)
	defer c.Stop()

	c.Set("last_cycle_report", "rapport")

	got, ok := c.Get("last_cycle_report")
	if !ok {
		t.Fatal("Get() returned false for existing key")
	}
	if got != "rapport" {
		t.Errorf("Get() = %v, want %v", got, "rapport")
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("Get() should return false for a missing key")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemory(50 * time.Millisecond)
	defer c.Stop()

	c.Set("short", 1)
	c.SetWithTTL("long", 2, time.Hour)

	time.Sleep(60 * time.Millisecond)

	if _, ok := c.Get("short"); ok {
		t.Error("entry with default ttl should have expired")
	}
	if _, ok := c.Get("long"); !ok {
		t.Error("entry with explicit ttl should survive")
	}
	c.removeExpired(time.Now())
	c.mu.RLock()
	stored := len(c.entries)
	c.mu.RUnlock()
	if stored != 1 {
		t.Errorf("removeExpired() left %d entries, want 1", stored)
	}
}

func TestMemoryCache_Delete(t *testing.T) {
	c := NewMemory(time.Minute)
	defer c.Stop()

	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	c.Delete("never-set")
	if _, ok := c.Get("a"); ok {
		t.Error("Get() after Delete() should miss")
	}

	if got, ok := c.Get("b"); !ok || got != 2 {
		t.Errorf("Get(b) = %v, %v; Delete() must leave other keys", got, ok)
	}
}

func TestMemoryCache_StopTwice(t *testing.T) {
	c := NewMemory(time.Minute)
	c.Stop()
	c.Stop()

	c.Set("after-stop", 1)
	if _, ok := c.Get("after-stop"); !ok {
		t.Error("cache should stay usable after Stop()")
	}
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	c := NewMemory(time.Minute)
	defer c.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n%5))
			c.Set(key, n)
			c.Get(key)
			if n%7 == 0 {
				c.Delete(key)
			}
		}(i)
	}
	wg.Wait()
}

func TestGetInto(t *testing.T) {
	c := NewMemory(time.Minute)
	defer c.Stop()

	report := models.CycleReport{Fetched: 12, Written: 9, Errors: []models.SourceFailure{{Source: "DN", Message: "status 503"}}}
	c.Set("last_cycle_report", report)

	var got models.CycleReport
	if !GetInto(c, "last_cycle_report", &got) {
		t.Fatal("GetInto() returned false")
	}
	if got.Fetched != 12 || got.Written != 9 || len(got.Errors) != 1 || got.Errors[0].Source != "DN" {
		t.Errorf("GetInto() = %+v", got)
	}

	if GetInto(c, "missing", &got) {
		t.Error("GetInto() should miss for an unknown key")
	}
	if GetInto(nil, "last_cycle_report", &got) {
		t.Error("GetInto() on a nil cache should miss")
	}
}

func TestMemoryCache_ImplementsInterface(t *testing.T) {
	var _ Cache = (*MemoryCache)(nil)
}
