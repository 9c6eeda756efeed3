package tabsession

import (
	"encoding/json"
	"fmt"

	"rentport/internal/tabid"
)

const credentialKey = "tab_credential"

// Credential is the tab-held mirror of the server's per-tab cookie.
// Either absent or fully populated, never partial; owned exclusively by
// the tab that wrote it.
type Credential struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	AccessToken string `json:"accessToken"`
}

// Same reports whether adopting other would change nothing this tab
// keys on. Name/role changes ride along only when one of these moves.
func (c *Credential) Same(other *Credential) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.UserID == other.UserID &&
		c.Email == other.Email &&
		c.AccessToken == other.AccessToken
}

func loadCredential(storage tabid.Storage) *Credential {
	raw, ok := storage.Get(credentialKey)
	if !ok || raw == "" {
		return nil
	}
	var cred Credential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return nil
	}
	if cred.UserID == "" || cred.AccessToken == "" {
		return nil
	}
	return &cred
}

func storeCredential(storage tabid.Storage, cred *Credential) error {
	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	return storage.Set(credentialKey, string(raw))
}

func clearCredential(storage tabid.Storage) error {
	return storage.Delete(credentialKey)
}
