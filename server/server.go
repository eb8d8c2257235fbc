package server

import (
	"crypto/tls"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/urfave/negroni"
	"golang.org/x/crypto/acme/autocert"

	"github.com/serline/ruleminer/extraction"
	"github.com/serline/ruleminer/handlers"
	"github.com/serline/ruleminer/job_tracker"
	"github.com/serline/ruleminer/semantic_cache"
	"github.com/serline/ruleminer/storage"
)

func SetupRoutes(documents *storage.DocumentStore, rules *storage.RuleStore, pipeline *extraction.Pipeline, tracker *job_tracker.Tracker, runs *job_tracker.Store, cache *semantic_cache.Cache, logger *slog.Logger) *mux.Router {
	r := mux.NewRouter()

	uploadHandler := handlers.NewUploadHandler(documents, pipeline, tracker, logger)
	r.Handle("/documents", uploadHandler).Methods("POST")

	documentHandler := handlers.NewDocumentHandler(documents, rules, runs, logger)
	r.HandleFunc("/documents/{id}/status", documentHandler.GetStatus).Methods("GET")
	r.HandleFunc("/documents/{id}/rules", documentHandler.GetRules).Methods("GET")

	r.Handle("/cache/stats", handlers.NewCacheStatsHandler(cache)).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	return r
}

// ServeProduction builds the server when we operate in a production
// environment.
func ServeProduction(n *negroni.Negroni, domains []string, certCacheDir string) {
	autocertManager := autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(certCacheDir),
	}

	// Listen for HTTP requests on port 80 in a new goroutine. Use
	// autocertManager.HTTPHandler(nil) as the handler. This will send
	// ACME "http-01" challenge responses as necessary, and 302
	// redirect all other requests to HTTPS.
	go func() {
		srv := &http.Server{
			Addr:         ":80",
			Handler:      autocertManager.HTTPHandler(nil),
			IdleTimeout:  time.Minute,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}

		err := srv.ListenAndServe()
		log.Fatal(err)
	}()

	tlsConfig := &tls.Config{
		GetCertificate:           autocertManager.GetCertificate,
		PreferServerCipherSuites: true,
		CurvePreferences:         []tls.CurveID{tls.X25519, tls.CurveP256},
	}

	srv := &http.Server{
		Addr:         ":443",
		Handler:      n,
		TLSConfig:    tlsConfig,
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	err := srv.ListenAndServeTLS("", "") // Key and cert provided automatically by autocert.
	log.Fatal(err)
}

// ServeDevelopment starts the server when we operate in a dev
// environment.
func ServeDevelopment(s *http.Server) {
	log.Fatal(s.ListenAndServe())
}
