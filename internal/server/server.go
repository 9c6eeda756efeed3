package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"rentport/internal/constants"
	"rentport/internal/realtime"
	"rentport/internal/resource"
	"rentport/internal/security"
	"rentport/internal/session"
	"rentport/internal/utils"
)

const maxConnectionsPerIP = 20

type Server struct {
	Store          session.StoreInterface
	Resources      *resource.Store
	Hub            *realtime.Hub
	Port           string
	Production     bool
	ConnLimiter    *security.ConnectionLimiter
	BruteProtector *security.BruteForceProtector
	AuditLogger    *security.AuditLogger
}

func NewServer() (*Server, error) {
	store, err := session.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	dbPath := utils.GetEnv("RENTPORT_DB", "rentport.db")
	resources, err := resource.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open resource store: %w", err)
	}

	adminEmail := utils.GetEnv("RENTPORT_ADMIN_EMAIL", "owner@rentport.local")
	adminPassword := utils.GetEnv("RENTPORT_ADMIN_PASSWORD", "change-me")
	if err := resources.SeedAdmin(adminEmail, "Owner", adminPassword); err != nil {
		return nil, fmt.Errorf("failed to seed admin account: %w", err)
	}

	auditLogger, err := security.GetAuditLogger()
	if err != nil {
		log.Printf("Warning: Failed to initialize audit logger: %v", err)
	}

	s := &Server{
		Store:          store,
		Resources:      resources,
		Hub:            realtime.NewHub(),
		Production:     utils.GetEnv("RENTPORT_ENV", "") == "production",
		ConnLimiter:    security.NewConnectionLimiter(maxConnectionsPerIP),
		BruteProtector: security.NewBruteForceProtector(constants.MaxAuthAttempts, constants.BlockDuration),
		AuditLogger:    auditLogger,
	}
	s.watchSessionExpiry()

	return s, nil
}

// watchSessionExpiry drops realtime connections whose session lapsed;
// the tab falls back to its reconnect loop and re-authenticates.
func (s *Server) watchSessionExpiry() {
	s.Store.OnExpire(func(tokenHash string) {
		s.Hub.CloseSession(tokenHash)
	})
}

// Handler assembles the full middleware chain. Split out of Run so
// tests can mount it on httptest servers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(constants.EndpointLogin, s.HandleLogin)
	mux.HandleFunc(constants.EndpointMe, s.HandleMe)
	mux.HandleFunc(constants.EndpointLogout, s.HandleLogout)
	mux.HandleFunc(constants.EndpointWebSocket, s.HandleWebSocket)
	mux.HandleFunc(constants.EndpointResources, s.HandleResource)

	var handler http.Handler = mux
	handler = RecoveryMiddleware(handler)
	handler = CorsMiddleware(handler)
	handler = security.SecurityHeaders(handler)
	return handler
}

func (s *Server) Run() {
	s.Port = utils.GetEnv("PORT", constants.DefaultPort)
	certFile := utils.GetEnv("RENTPORT_CERT_FILE", "certs/server.crt")
	keyFile := utils.GetEnv("RENTPORT_KEY_FILE", "certs/server.key")

	handler := s.Handler()

	enableTLS := utils.GetEnv("RENTPORT_ENABLE_TLS", "false") == "true"
	useTLS := false

	if enableTLS {
		if _, err := os.Stat(certFile); err == nil {
			if _, err := os.Stat(keyFile); err == nil {
				useTLS = true
			}
		}

		if !useTLS {
			log.Printf("Warning: RENTPORT_ENABLE_TLS is true but certs not found at %s", certFile)
		}
	}

	var h2Handler http.Handler
	if useTLS {
		h2Handler = handler
	} else {
		h2Handler = h2c.NewHandler(handler, &http2.Server{})
	}

	server := &http.Server{
		Addr:              ":" + s.Port,
		Handler:           h2Handler,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if useTLS {
		log.Printf("🔒 HTTPS enabled (HTTP/2)")
		go func() {
			if err := server.ListenAndServeTLS(certFile, keyFile); err != nil && err != http.ErrServerClosed {
				log.Fatalf("HTTPS server error: %v", err)
			}
		}()
	} else {
		log.Printf("🌐 HTTP mode (HTTP/2 enabled)")
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("HTTP server error: %v", err)
			}
		}()
	}

	log.Printf("🚀 rentport server starting on :%s", s.Port)

	<-sigChan
	log.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	s.Cleanup()
	log.Println("✅ Server stopped")
}

func (s *Server) Cleanup() {
	s.Hub.CloseAll()
	s.Store.Close()
	s.Resources.Close()
}
