package resource

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(filepath.Join(t.TempDir(), "rentport.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestAuthenticate(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.CreateUser("owner@example.com", "Owner", "owner", "hunter22"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	u, err := st.Authenticate("owner@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if u.Email != "owner@example.com" || u.Role != "owner" {
		t.Fatalf("user = %+v", u)
	}

	if _, err := st.Authenticate("owner@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v", err)
	}
	if _, err := st.Authenticate("nobody@example.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email err = %v", err)
	}
}

func TestSeedAdminOnce(t *testing.T) {
	st := newTestStore(t)
	if err := st.SeedAdmin("owner@example.com", "Owner", "hunter22"); err != nil {
		t.Fatalf("SeedAdmin: %v", err)
	}
	// second seed with a different email must not add an account
	if err := st.SeedAdmin("other@example.com", "Other", "pw"); err != nil {
		t.Fatalf("SeedAdmin again: %v", err)
	}
	if _, err := st.UserByEmail("other@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected second seed to be skipped, err = %v", err)
	}
}

func TestInvoiceCRUD(t *testing.T) {
	st := newTestStore(t)

	created, err := st.CreateInvoice(Invoice{RoomID: "room-1", Month: "2026-08", Amount: 750})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if created.ID == "" || created.Status != "pending" {
		t.Fatalf("created = %+v", created)
	}

	list, err := st.ListInvoices()
	if err != nil {
		t.Fatalf("ListInvoices: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("list = %+v", list)
	}

	updated, err := st.UpdateInvoice(created.ID, Invoice{RoomID: "room-1", Month: "2026-08", Amount: 750, Status: "paid"})
	if err != nil {
		t.Fatalf("UpdateInvoice: %v", err)
	}
	if updated.Status != "paid" {
		t.Fatalf("updated = %+v", updated)
	}

	if _, err := st.Delete("invoices", created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	list, _ = st.ListInvoices()
	if len(list) != 0 {
		t.Fatalf("list after delete = %+v", list)
	}
}

func TestInvoiceValidation(t *testing.T) {
	st := newTestStore(t)

	cases := []struct {
		name string
		in   Invoice
	}{
		{"missing month", Invoice{Amount: 100}},
		{"zero amount", Invoice{Month: "2026-08"}},
		{"negative amount", Invoice{Month: "2026-08", Amount: -5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := st.CreateInvoice(tc.in); !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestUpdateMissingRowNotFound(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.UpdateInvoice("no-such-id", Invoice{Month: "2026-08", Amount: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := st.Delete("invoices", "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete err = %v, want ErrNotFound", err)
	}
}

func TestDispatchByResourceName(t *testing.T) {
	st := newTestStore(t)

	body := json.RawMessage(`{"name":"Haus Mitte","address":"Main St 1"}`)
	created, err := st.Create("properties", body)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	prop, ok := created.(Property)
	if !ok || prop.Name != "Haus Mitte" {
		t.Fatalf("created = %#v", created)
	}

	listed, err := st.List("properties")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if props := listed.([]Property); len(props) != 1 {
		t.Fatalf("listed = %#v", listed)
	}

	updatedBody := json.RawMessage(`{"name":"Haus Mitte","address":"Main St 2"}`)
	updated, err := st.Update("properties", prop.ID, updatedBody)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.(Property).Address != "Main St 2" {
		t.Fatalf("updated = %#v", updated)
	}

	tombstone, err := st.Delete("properties", prop.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if tombstone.(Property).ID != prop.ID {
		t.Fatalf("tombstone = %#v", tombstone)
	}

	if _, err := st.List("unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown resource err = %v", err)
	}
	if _, err := st.Create("invoices", json.RawMessage(`{"amount":"ten"}`)); !errors.Is(err, ErrValidation) {
		t.Fatalf("malformed body err = %v", err)
	}
}

func TestRoomAndTenantRequireName(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.CreateRoom(Room{Rent: 500}); !errors.Is(err, ErrValidation) {
		t.Fatalf("room err = %v", err)
	}
	if _, err := st.CreateTenant(Tenant{Email: "x@example.com"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("tenant err = %v", err)
	}
}
