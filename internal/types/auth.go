package types

// User is the public identity shape returned by the auth endpoints.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TabID    string `json:"tabId"`
}

type LoginData struct {
	User        User   `json:"user"`
	AccessToken string `json:"accessToken"`
	TabID       string `json:"tabId"`
	CookieName  string `json:"cookieName"`
}

type MeData struct {
	User        User   `json:"user"`
	AccessToken string `json:"accessToken"`
	TabID       string `json:"tabId"`
}

type LogoutRequest struct {
	TabID string `json:"tabId"`
}
