package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"rentport/internal/apiclient"
	"rentport/internal/constants"
	"rentport/internal/realtime"
	"rentport/internal/resource"
	"rentport/internal/security"
	"rentport/internal/session"
	"rentport/internal/types"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	resources, err := resource.NewStore(filepath.Join(t.TempDir(), "rentport.db"))
	require.NoError(t, err)
	_, err = resources.CreateUser("owner@example.com", "Owner", "owner", "hunter22")
	require.NoError(t, err)
	_, err = resources.CreateUser("manager@example.com", "Manager", "manager", "s3cret-pw")
	require.NoError(t, err)

	s := &Server{
		Store:          session.NewMemoryStore(),
		Resources:      resources,
		Hub:            realtime.NewHub(),
		ConnLimiter:    security.NewConnectionLimiter(maxConnectionsPerIP),
		BruteProtector: security.NewBruteForceProtector(constants.MaxAuthAttempts, constants.BlockDuration),
	}
	s.watchSessionExpiry()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Cleanup()
	})
	return s, ts
}

func loginTab(t *testing.T, ts *httptest.Server, email, password string) (*apiclient.Client, *types.LoginData) {
	t.Helper()
	client, err := apiclient.New(ts.URL, uuid.New().String())
	require.NoError(t, err)
	data, err := client.Login(context.Background(), email, password)
	require.NoError(t, err)
	return client, data
}

func TestLoginSetsPerTabCookie(t *testing.T) {
	_, ts := newTestServer(t)
	tabID := uuid.New().String()

	body, _ := json.Marshal(types.LoginRequest{Email: "owner@example.com", Password: "hunter22", TabID: tabID})
	resp, err := http.Post(ts.URL+constants.EndpointLogin, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope types.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.True(t, envelope.Success)

	var data types.LoginData
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, "session_"+tabID, data.CookieName)
	require.Equal(t, tabID, data.TabID)
	require.NotEmpty(t, data.AccessToken)
	require.Equal(t, "owner@example.com", data.User.Email)

	var sessionCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == data.CookieName {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie, "login must set the per-tab cookie")
	require.True(t, sessionCookie.HttpOnly)
	require.Equal(t, "/", sessionCookie.Path)
	require.Positive(t, sessionCookie.MaxAge)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	_, ts := newTestServer(t)
	client, err := apiclient.New(ts.URL, uuid.New().String())
	require.NoError(t, err)

	_, err = client.Login(context.Background(), "owner@example.com", "wrong")
	require.ErrorIs(t, err, apiclient.ErrUnauthenticated)
}

// Two tabs against the same origin stay logged in as two different
// users; neither tab's requests ever observe the other's cookie.
func TestTabIsolation(t *testing.T) {
	_, ts := newTestServer(t)

	tabA, _ := loginTab(t, ts, "owner@example.com", "hunter22")
	tabB, _ := loginTab(t, ts, "manager@example.com", "s3cret-pw")

	meA, err := tabA.Me(context.Background())
	require.NoError(t, err)
	meB, err := tabB.Me(context.Background())
	require.NoError(t, err)

	require.Equal(t, "owner@example.com", meA.User.Email)
	require.Equal(t, "manager@example.com", meB.User.Email)
	require.NotEqual(t, meA.TabID, meB.TabID)
	require.NotEqual(t, meA.AccessToken, meB.AccessToken)
}

// A tab presenting another tab's cookie under its own tab id is not
// authenticated: the server only reads session_<requesting tab>.
func TestForeignCookieDoesNotAuthenticate(t *testing.T) {
	_, ts := newTestServer(t)
	tabA := uuid.New().String()
	tabB := uuid.New().String()

	body, _ := json.Marshal(types.LoginRequest{Email: "owner@example.com", Password: "hunter22", TabID: tabA})
	resp, err := http.Post(ts.URL+constants.EndpointLogin, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()

	var cookieA *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "session_"+tabA {
			cookieA = c
		}
	}
	require.NotNil(t, cookieA)

	req, err := http.NewRequest(http.MethodGet, ts.URL+constants.EndpointMe, nil)
	require.NoError(t, err)
	req.Header.Set(constants.TabIDHeader, tabB)
	req.AddCookie(cookieA)

	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestMeWithoutCookie(t *testing.T) {
	_, ts := newTestServer(t)
	client, err := apiclient.New(ts.URL, uuid.New().String())
	require.NoError(t, err)

	_, err = client.Me(context.Background())
	require.ErrorIs(t, err, apiclient.ErrUnauthenticated)
}

// Logout succeeds whether or not a session exists, and always removes
// the tab's cookie.
func TestLogoutIdempotent(t *testing.T) {
	_, ts := newTestServer(t)

	// logout with no prior login
	fresh, err := apiclient.New(ts.URL, uuid.New().String())
	require.NoError(t, err)
	require.NoError(t, fresh.Logout(context.Background()))

	// login, logout, verify, logout again
	tab, _ := loginTab(t, ts, "owner@example.com", "hunter22")
	require.NoError(t, tab.Logout(context.Background()))

	_, err = tab.Me(context.Background())
	require.ErrorIs(t, err, apiclient.ErrUnauthenticated)

	require.NoError(t, tab.Logout(context.Background()))
}

func TestLogoutExpiresCookie(t *testing.T) {
	_, ts := newTestServer(t)
	tabID := uuid.New().String()

	body, _ := json.Marshal(types.LogoutRequest{TabID: tabID})
	resp, err := http.Post(ts.URL+constants.EndpointLogout, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var expired *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "session_"+tabID {
			expired = c
		}
	}
	require.NotNil(t, expired)
	require.Equal(t, -1, expired.MaxAge)
}

func TestLogoutOfOneTabLeavesOthersAlive(t *testing.T) {
	_, ts := newTestServer(t)

	tabA, _ := loginTab(t, ts, "owner@example.com", "hunter22")
	tabB, _ := loginTab(t, ts, "manager@example.com", "s3cret-pw")

	require.NoError(t, tabA.Logout(context.Background()))

	me, err := tabB.Me(context.Background())
	require.NoError(t, err)
	require.Equal(t, "manager@example.com", me.User.Email)
}

func TestResourceRequiresAuth(t *testing.T) {
	_, ts := newTestServer(t)
	client, err := apiclient.New(ts.URL, uuid.New().String())
	require.NoError(t, err)

	_, err = apiclient.List[resource.Invoice](context.Background(), client, constants.ResourceInvoices)
	require.ErrorIs(t, err, apiclient.ErrUnauthenticated)
}

func TestResourceCRUD(t *testing.T) {
	_, ts := newTestServer(t)
	tab, _ := loginTab(t, ts, "owner@example.com", "hunter22")
	ctx := context.Background()

	created, err := apiclient.Create(ctx, tab, constants.ResourceInvoices, resource.Invoice{RoomID: "room-1", Month: "2026-08", Amount: 750})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "pending", created.Status)

	list, err := apiclient.List[resource.Invoice](ctx, tab, constants.ResourceInvoices)
	require.NoError(t, err)
	require.Len(t, list, 1)

	created.Status = "paid"
	updated, err := apiclient.Update(ctx, tab, constants.ResourceInvoices, created.ID, created)
	require.NoError(t, err)
	require.Equal(t, "paid", updated.Status)

	require.NoError(t, tab.DeleteResource(ctx, constants.ResourceInvoices, created.ID))

	list, err = apiclient.List[resource.Invoice](ctx, tab, constants.ResourceInvoices)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestResourceValidationError(t *testing.T) {
	_, ts := newTestServer(t)
	tab, _ := loginTab(t, ts, "owner@example.com", "hunter22")

	_, err := apiclient.Create(context.Background(), tab, constants.ResourceInvoices, resource.Invoice{Month: "2026-08"})
	require.ErrorIs(t, err, apiclient.ErrValidation)
	require.Contains(t, err.Error(), "amount")
}

func TestUnknownResourceNotFound(t *testing.T) {
	_, ts := newTestServer(t)
	tab, _ := loginTab(t, ts, "owner@example.com", "hunter22")

	_, err := tab.ListRaw(context.Background(), "widgets")
	require.ErrorIs(t, err, apiclient.ErrValidation)
}

func TestBruteForceLockout(t *testing.T) {
	_, ts := newTestServer(t)
	client, err := apiclient.New(ts.URL, uuid.New().String())
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < constants.MaxAuthAttempts; i++ {
		_, err := client.Login(ctx, "owner@example.com", "wrong")
		require.ErrorIs(t, err, apiclient.ErrUnauthenticated)
	}

	// even the correct password is refused while blocked
	_, err = client.Login(ctx, "owner@example.com", "hunter22")
	require.ErrorIs(t, err, apiclient.ErrValidation)
	require.Contains(t, err.Error(), "Too many failed attempts")
}

func TestWebSocketRejectsInvalidToken(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + constants.EndpointWebSocket + "?token=short")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// When a session lapses, the store's expiry callback drops that tab's
// realtime connection from the hub.
func TestExpiredSessionDropsRealtimeClient(t *testing.T) {
	s, ts := newTestServer(t)

	_, login := loginTab(t, ts, "owner@example.com", "hunter22")

	ch := realtime.NewChannel(ts.URL, realtime.DefaultBackoff())
	defer ch.Disconnect()

	connected := make(chan struct{}, 4)
	ch.OnStateChange(func(st realtime.State) {
		if st == realtime.StateConnected {
			connected <- struct{}{}
		}
	})
	ch.Connect(login.AccessToken)

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("channel never connected")
	}
	require.Equal(t, 1, s.Hub.ClientCount())

	// lapse the session, then touch it so the store notices
	tokenHash := session.HashSHA256(login.AccessToken)
	s.Store.Save(&session.Session{
		TokenHash: tokenHash,
		UserID:    login.User.ID,
		TabID:     login.TabID,
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	})
	_, ok := s.Store.Get(tokenHash)
	require.False(t, ok)

	deadline := time.Now().Add(5 * time.Second)
	for s.Hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("hub still holds %d clients after session expiry", s.Hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// A mutation through one tab's REST call reaches another tab's realtime
// channel as a resource event.
func TestMutationReachesRealtimeChannel(t *testing.T) {
	_, ts := newTestServer(t)

	_, observerLogin := loginTab(t, ts, "manager@example.com", "s3cret-pw")

	ch := realtime.NewChannel(ts.URL, realtime.DefaultBackoff())
	defer ch.Disconnect()

	events := make(chan resource.Invoice, 4)
	ch.OnResourceUpdate(constants.ResourceInvoices, func(kind realtime.EventKind, data json.RawMessage) {
		if kind != realtime.EventCreate {
			return
		}
		var inv resource.Invoice
		if json.Unmarshal(data, &inv) == nil {
			events <- inv
		}
	})

	connected := make(chan struct{}, 4)
	ch.OnStateChange(func(s realtime.State) {
		if s == realtime.StateConnected {
			connected <- struct{}{}
		}
	})
	ch.Connect(observerLogin.AccessToken)

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("channel never connected")
	}

	writer, _ := loginTab(t, ts, "owner@example.com", "hunter22")
	created, err := apiclient.Create(context.Background(), writer, constants.ResourceInvoices, resource.Invoice{Month: "2026-08", Amount: 900})
	require.NoError(t, err)

	select {
	case inv := <-events:
		require.Equal(t, created.ID, inv.ID)
		require.Equal(t, "2026-08", inv.Month)
	case <-time.After(5 * time.Second):
		t.Fatal("realtime event never arrived")
	}
}
