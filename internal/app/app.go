package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fhir-relay/internal/auth"
	"fhir-relay/internal/config"
	"fhir-relay/internal/fhir"
)

// Application holds all the major components of the relay.
type Application struct {
	Config        *config.Config
	Logger        *log.Logger
	Flow          *auth.Flow
	TokenCache    *auth.TokenCache
	FHIR          *fhir.Client
	Sandbox       *fhir.SandboxClient
	HTTPServer    *http.Server
	MetricsServer *http.Server
}

// New creates and initializes a new Application instance.
func New(cfg *config.Config) (*Application, error) {
	logger := log.New(os.Stdout, "fhir-relay: ", log.LstdFlags)

	httpClient := &http.Client{Timeout: cfg.UpstreamTimeout}

	// Setup: authorization flow
	tokenCache := auth.NewTokenCache()
	stateStore := auth.NewInMemoryStateStore(cfg.StateTTL)
	exchanger := auth.NewExchanger(httpClient, cfg.TokenURL(), cfg.ClientID, cfg.RedirectURI)
	flow := auth.NewFlow(cfg.ClientID, cfg.RedirectURI, cfg.AuthorizeURL(), cfg.TokenURL(),
		cfg.Scopes, cfg.FHIRBaseURL(), auth.NewPKCEGenerator(), stateStore, tokenCache, exchanger, logger)

	// Setup: FHIR clients
	fhirClient := fhir.NewClient(httpClient, cfg.FHIRBaseURL(), logger)
	sandboxClient := fhir.NewSandboxClient(httpClient, cfg.SandboxBaseURL(), logger)

	// Setup: metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		Flow:          flow,
		TokenCache:    tokenCache,
		FHIR:          fhirClient,
		Sandbox:       sandboxClient,
		MetricsServer: metricsServer,
	}

	app.HTTPServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: app.Routes(),
	}

	return app, nil
}

// Routes builds the relay's HTTP handler.
func (a *Application) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", a.handleRoot)
	mux.HandleFunc("GET /login", a.handleLogin)
	mux.HandleFunc("GET /callback", a.handleCallback)
	mux.HandleFunc("GET /patients", a.handlePatients)
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /fhir/metadata", a.handleMetadata)

	mux.HandleFunc("GET /sandbox/patients", a.handleSandboxPatients)
	mux.HandleFunc("GET /sandbox/patients/{id}", a.handleSandboxPatient)
	mux.HandleFunc("GET /sandbox/patients/{id}/coverage", a.handleSandboxPatientCoverage)
	mux.HandleFunc("GET /sandbox/patients/{id}/complete", a.handleSandboxPatientComplete)
	mux.HandleFunc("GET /sandbox/observations", a.handleSandboxObservations)
	mux.HandleFunc("GET /sandbox/medications", a.handleSandboxMedications)
	mux.HandleFunc("GET /sandbox/medication-requests/{id}", a.handleSandboxMedicationRequest)
	mux.HandleFunc("GET /sandbox/insurance-plans", a.handleSandboxInsurancePlans)
	mux.HandleFunc("GET /sandbox/insurance-plans/{id}", a.handleSandboxInsurancePlan)
	mux.HandleFunc("GET /sandbox/known-patients", a.handleSandboxKnownPatients)
	mux.HandleFunc("GET /sandbox/search-examples", a.handleSandboxSearchExamples)

	return a.withLogging(mux)
}

// Start begins the application's servers.
func (a *Application) Start(ctx context.Context) error {
	a.Logger.Println("Starting application services...")

	go func() {
		a.Logger.Printf("Starting metrics server on %s", a.MetricsServer.Addr)
		if err := a.MetricsServer.ListenAndServe(); err != http.ErrServerClosed {
			a.Logger.Fatalf("Metrics server ListenAndServe: %v", err)
		}
	}()

	go func() {
		a.Logger.Printf("Starting HTTP server on %s", a.HTTPServer.Addr)
		if err := a.HTTPServer.ListenAndServe(); err != http.ErrServerClosed {
			a.Logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the application's servers.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.Println("Stopping application services...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := a.HTTPServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Printf("HTTP server shutdown error: %v", err)
	}
	if err := a.MetricsServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Printf("Metrics server shutdown error: %v", err)
	}

	a.Logger.Println("Application stopped gracefully.")
	return nil
}
