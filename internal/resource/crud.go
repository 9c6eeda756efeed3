package resource

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// The REST surface is uniform across resource types, so the handlers
// dispatch through these by resource name rather than one handler per
// table.

func (s *Store) List(name string) (any, error) {
	switch name {
	case "invoices":
		return s.ListInvoices()
	case "properties":
		return s.ListProperties()
	case "rooms":
		return s.ListRooms()
	case "tenants":
		return s.ListTenants()
	}
	return nil, ErrNotFound
}

func (s *Store) Create(name string, body json.RawMessage) (any, error) {
	switch name {
	case "invoices":
		var in Invoice
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return s.CreateInvoice(in)
	case "properties":
		var in Property
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return s.CreateProperty(in)
	case "rooms":
		var in Room
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return s.CreateRoom(in)
	case "tenants":
		var in Tenant
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return s.CreateTenant(in)
	}
	return nil, ErrNotFound
}

func (s *Store) Update(name, id string, body json.RawMessage) (any, error) {
	switch name {
	case "invoices":
		var in Invoice
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return s.UpdateInvoice(id, in)
	case "properties":
		var in Property
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return s.UpdateProperty(id, in)
	case "rooms":
		var in Room
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return s.UpdateRoom(id, in)
	case "tenants":
		var in Tenant
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return s.UpdateTenant(id, in)
	}
	return nil, ErrNotFound
}

func (s *Store) Delete(name, id string) (any, error) {
	switch name {
	case "invoices":
		return s.deleteRow("invoices", id, func(id string) any { return Invoice{ID: id} })
	case "properties":
		return s.deleteRow("properties", id, func(id string) any { return Property{ID: id} })
	case "rooms":
		return s.deleteRow("rooms", id, func(id string) any { return Room{ID: id} })
	case "tenants":
		return s.deleteRow("tenants", id, func(id string) any { return Tenant{ID: id} })
	}
	return nil, ErrNotFound
}

func (s *Store) deleteRow(table, id string, tombstone func(string) any) (any, error) {
	res, err := s.db.Exec(`DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, ErrNotFound
	}
	return tombstone(id), nil
}

// Invoices

func (s *Store) ListInvoices() ([]Invoice, error) {
	rows, err := s.db.Query(`SELECT id, room_id, month, amount, status FROM invoices ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Invoice{}
	for rows.Next() {
		var in Invoice
		if err := rows.Scan(&in.ID, &in.RoomID, &in.Month, &in.Amount, &in.Status); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *Store) CreateInvoice(in Invoice) (Invoice, error) {
	if in.Month == "" {
		return Invoice{}, fmt.Errorf("%w: month is required", ErrValidation)
	}
	if in.Amount <= 0 {
		return Invoice{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	in.ID = uuid.New().String()
	if in.Status == "" {
		in.Status = "pending"
	}
	_, err := s.db.Exec(
		`INSERT INTO invoices (id, room_id, month, amount, status) VALUES (?, ?, ?, ?, ?)`,
		in.ID, in.RoomID, in.Month, in.Amount, in.Status,
	)
	return in, err
}

func (s *Store) UpdateInvoice(id string, in Invoice) (Invoice, error) {
	if in.Month == "" {
		return Invoice{}, fmt.Errorf("%w: month is required", ErrValidation)
	}
	in.ID = id
	if in.Status == "" {
		in.Status = "pending"
	}
	return in, s.updateRow(
		`UPDATE invoices SET room_id = ?, month = ?, amount = ?, status = ? WHERE id = ?`,
		in.RoomID, in.Month, in.Amount, in.Status, id,
	)
}

// Properties

func (s *Store) ListProperties() ([]Property, error) {
	rows, err := s.db.Query(`SELECT id, name, address FROM properties ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Property{}
	for rows.Next() {
		var p Property
		if err := rows.Scan(&p.ID, &p.Name, &p.Address); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreateProperty(in Property) (Property, error) {
	if in.Name == "" {
		return Property{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	in.ID = uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO properties (id, name, address) VALUES (?, ?, ?)`,
		in.ID, in.Name, in.Address,
	)
	return in, err
}

func (s *Store) UpdateProperty(id string, in Property) (Property, error) {
	if in.Name == "" {
		return Property{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	in.ID = id
	return in, s.updateRow(
		`UPDATE properties SET name = ?, address = ? WHERE id = ?`,
		in.Name, in.Address, id,
	)
}

// Rooms

func (s *Store) ListRooms() ([]Room, error) {
	rows, err := s.db.Query(`SELECT id, property_id, name, rent FROM rooms ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Room{}
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.ID, &r.PropertyID, &r.Name, &r.Rent); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CreateRoom(in Room) (Room, error) {
	if in.Name == "" {
		return Room{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	in.ID = uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO rooms (id, property_id, name, rent) VALUES (?, ?, ?, ?)`,
		in.ID, in.PropertyID, in.Name, in.Rent,
	)
	return in, err
}

func (s *Store) UpdateRoom(id string, in Room) (Room, error) {
	if in.Name == "" {
		return Room{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	in.ID = id
	return in, s.updateRow(
		`UPDATE rooms SET property_id = ?, name = ?, rent = ? WHERE id = ?`,
		in.PropertyID, in.Name, in.Rent, id,
	)
}

// Tenants

func (s *Store) ListTenants() ([]Tenant, error) {
	rows, err := s.db.Query(`SELECT id, room_id, name, email, phone FROM tenants ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Tenant{}
	for rows.Next() {
		var tn Tenant
		if err := rows.Scan(&tn.ID, &tn.RoomID, &tn.Name, &tn.Email, &tn.Phone); err != nil {
			return nil, err
		}
		out = append(out, tn)
	}
	return out, rows.Err()
}

func (s *Store) CreateTenant(in Tenant) (Tenant, error) {
	if in.Name == "" {
		return Tenant{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	in.ID = uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO tenants (id, room_id, name, email, phone) VALUES (?, ?, ?, ?, ?)`,
		in.ID, in.RoomID, in.Name, in.Email, in.Phone,
	)
	return in, err
}

func (s *Store) UpdateTenant(id string, in Tenant) (Tenant, error) {
	if in.Name == "" {
		return Tenant{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	in.ID = id
	return in, s.updateRow(
		`UPDATE tenants SET room_id = ?, name = ?, email = ?, phone = ? WHERE id = ?`,
		in.RoomID, in.Name, in.Email, in.Phone, id,
	)
}

func (s *Store) updateRow(query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
