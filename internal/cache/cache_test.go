package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"rentport/internal/realtime"
	"rentport/internal/resource"
)

func invoiceIdent() Identity[resource.Invoice] {
	return Identity[resource.Invoice]{
		ID: func(inv resource.Invoice) string { return inv.ID },
		WithID: func(inv resource.Invoice, id string) resource.Invoice {
			inv.ID = id
			return inv
		},
	}
}

func ids(records []resource.Invoice) []string {
	out := make([]string, len(records))
	for i, rec := range records {
		out[i] = rec.ID
	}
	return out
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestTempIDDisjointFromServerIDs(t *testing.T) {
	id := TempID()
	if !IsTempID(id) {
		t.Fatalf("TempID() = %q, expected temp prefix", id)
	}
	if IsTempID("550e8400-e29b-41d4-a716-446655440000") {
		t.Error("plain UUID must not read as a temp id")
	}
}

func TestCreateSuccessResolvesProvisional(t *testing.T) {
	c := New(invoiceIdent())

	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := c.Create(context.Background(), resource.Invoice{Month: "2026-08", Amount: 750}, func(ctx context.Context) (resource.Invoice, error) {
			<-release
			return resource.Invoice{ID: "srv-1", Month: "2026-08", Amount: 750, Status: "open"}, nil
		})
		done <- err
	}()

	// provisional record is visible while the call is in flight
	waitFor(t, func() bool { return c.Len() == 1 })
	list := c.List()
	if !IsTempID(list[0].ID) {
		t.Fatalf("in-flight record has id %q, expected a temp id", list[0].ID)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Create: %v", err)
	}

	list = c.List()
	if len(list) != 1 || list[0].ID != "srv-1" {
		t.Fatalf("after confirmation got %v, expected single srv-1", ids(list))
	}
	if list[0].Status != "open" {
		t.Errorf("confirmed record lost server fields: %+v", list[0])
	}
}

func TestCreateFailureRollsBack(t *testing.T) {
	c := New(invoiceIdent())
	c.Replace([]resource.Invoice{{ID: "srv-0", Month: "2026-07", Amount: 700}})

	callErr := errors.New("amount must be positive")
	_, err := c.Create(context.Background(), resource.Invoice{Month: "2026-08"}, func(ctx context.Context) (resource.Invoice, error) {
		return resource.Invoice{}, callErr
	})
	if !errors.Is(err, callErr) {
		t.Fatalf("Create err = %v, expected %v", err, callErr)
	}

	list := c.List()
	if len(list) != 1 || list[0].ID != "srv-0" {
		t.Fatalf("after rollback got %v, expected pre-call snapshot [srv-0]", ids(list))
	}
}

func TestDeleteFailureRestoresPosition(t *testing.T) {
	c := New(invoiceIdent())
	c.Replace([]resource.Invoice{
		{ID: "srv-1", Month: "2026-06"},
		{ID: "srv-2", Month: "2026-07"},
		{ID: "srv-3", Month: "2026-08"},
	})

	callErr := errors.New("backend down")
	err := c.Delete(context.Background(), "srv-2", func(ctx context.Context) error {
		if c.Len() != 2 {
			t.Error("record should be gone while the call is in flight")
		}
		return callErr
	})
	if !errors.Is(err, callErr) {
		t.Fatalf("Delete err = %v, expected %v", err, callErr)
	}

	got := ids(c.List())
	want := []string{"srv-1", "srv-2", "srv-3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("after rollback got %v, want %v", got, want)
		}
	}
}

func TestDeleteSuccess(t *testing.T) {
	c := New(invoiceIdent())
	c.Replace([]resource.Invoice{{ID: "srv-1"}, {ID: "srv-2"}})

	if err := c.Delete(context.Background(), "srv-1", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got := ids(c.List())
	if len(got) != 1 || got[0] != "srv-2" {
		t.Fatalf("after delete got %v", got)
	}
}

func TestApplyEventIdempotent(t *testing.T) {
	c := New(invoiceIdent())
	rec := resource.Invoice{ID: "srv-1", Month: "2026-08", Amount: 750}

	c.ApplyEvent(realtime.EventCreate, rec)
	c.ApplyEvent(realtime.EventCreate, rec)
	if c.Len() != 1 {
		t.Fatalf("duplicate create event produced %d records", c.Len())
	}

	c.ApplyEvent(realtime.EventDelete, rec)
	c.ApplyEvent(realtime.EventDelete, rec)
	if c.Len() != 0 {
		t.Fatalf("duplicate delete event left %d records", c.Len())
	}

	// update for an unknown id inserts once, then overwrites in place
	c.ApplyEvent(realtime.EventUpdate, rec)
	updated := rec
	updated.Status = "paid"
	c.ApplyEvent(realtime.EventUpdate, updated)
	list := c.List()
	if len(list) != 1 || list[0].Status != "paid" {
		t.Fatalf("after updates got %+v", list)
	}
}

func TestApplyEventIgnoresTempAndEmptyIDs(t *testing.T) {
	c := New(invoiceIdent())
	c.ApplyEvent(realtime.EventCreate, resource.Invoice{ID: TempID()})
	c.ApplyEvent(realtime.EventCreate, resource.Invoice{})
	if c.Len() != 0 {
		t.Fatalf("events without server ids must be dropped, got %d records", c.Len())
	}
}

// A create's realtime event can arrive before the HTTP response. The
// provisional record must not be duplicated when the response lands.
func TestCreateRacesRealtimeEvent(t *testing.T) {
	c := New(invoiceIdent())

	release := make(chan struct{})
	done := make(chan error, 1)
	confirmed := resource.Invoice{ID: "srv-9", Month: "2026-08", Amount: 900}
	go func() {
		_, err := c.Create(context.Background(), resource.Invoice{Month: "2026-08", Amount: 900}, func(ctx context.Context) (resource.Invoice, error) {
			<-release
			return confirmed, nil
		})
		done <- err
	}()

	waitFor(t, func() bool { return c.Len() == 1 })

	// realtime delivery beats the response: temp record plus server record
	c.ApplyEvent(realtime.EventCreate, confirmed)
	if c.Len() != 2 {
		t.Fatalf("expected temp + realtime records, got %d", c.Len())
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Create: %v", err)
	}

	list := c.List()
	if len(list) != 1 || list[0].ID != "srv-9" {
		t.Fatalf("after resolution got %v, expected single srv-9", ids(list))
	}
}

func TestReplaceKeepsPendingRecords(t *testing.T) {
	c := New(invoiceIdent())

	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := c.Create(context.Background(), resource.Invoice{Month: "2026-08"}, func(ctx context.Context) (resource.Invoice, error) {
			<-release
			return resource.Invoice{ID: "srv-1", Month: "2026-08"}, nil
		})
		done <- err
	}()
	waitFor(t, func() bool { return c.Len() == 1 })

	// refresh-after-reconnect while the create is still in flight
	c.Replace([]resource.Invoice{{ID: "srv-7"}})

	got := ids(c.List())
	if len(got) != 2 || got[0] != "srv-7" || !IsTempID(got[1]) {
		t.Fatalf("replace dropped the pending record: %v", got)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Create: %v", err)
	}
	got = ids(c.List())
	if len(got) != 2 || got[1] != "srv-1" {
		t.Fatalf("after confirmation got %v", got)
	}
}

// Snapshots must arrive in mutation order: after a create immediately
// followed by its delete, the observer's final snapshot is empty, never
// the intermediate one with the record still present.
func TestOnChangeDeliversInMutationOrder(t *testing.T) {
	c := New(invoiceIdent())

	var mu sync.Mutex
	var last []resource.Invoice
	delivered := 0
	c.OnChange(func(list []resource.Invoice) {
		mu.Lock()
		last = list
		delivered++
		mu.Unlock()
	})

	const rounds = 500
	for i := 0; i < rounds; i++ {
		rec := resource.Invoice{ID: fmt.Sprintf("srv-%d", i), Month: "2026-08"}
		c.ApplyEvent(realtime.EventCreate, rec)
		c.ApplyEvent(realtime.EventDelete, rec)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered == rounds*2
	})

	mu.Lock()
	defer mu.Unlock()
	if len(last) != 0 {
		t.Fatalf("final snapshot = %v, want empty", ids(last))
	}
}

func TestOnChangeReceivesSnapshots(t *testing.T) {
	c := New(invoiceIdent())
	snapshots := make(chan []resource.Invoice, 8)
	c.OnChange(func(list []resource.Invoice) { snapshots <- list })

	c.ApplyEvent(realtime.EventCreate, resource.Invoice{ID: "srv-1"})

	select {
	case list := <-snapshots:
		if len(list) != 1 || list[0].ID != "srv-1" {
			t.Fatalf("snapshot = %v", ids(list))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onChange never fired")
	}
}
