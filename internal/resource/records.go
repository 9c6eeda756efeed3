package resource

// Records mirror the REST wire shapes. A record's ID is empty until the
// store persists it; client-side provisional entries carry a temp id in
// the same field, drawn from a disjoint prefix space.

type Invoice struct {
	ID     string `json:"id"`
	RoomID string `json:"roomId,omitempty"`
	Month  string `json:"month"`
	Amount int64  `json:"amount"`
	Status string `json:"status,omitempty"`
}

type Property struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

type Room struct {
	ID         string `json:"id"`
	PropertyID string `json:"propertyId,omitempty"`
	Name       string `json:"name"`
	Rent       int64  `json:"rent"`
}

type Tenant struct {
	ID     string `json:"id"`
	RoomID string `json:"roomId,omitempty"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// User is the server-side identity record; PasswordHash never leaves
// the store.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         string
	PasswordHash string
}
