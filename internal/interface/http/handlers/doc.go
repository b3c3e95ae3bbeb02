// Package handlers contains reusable HTTP building blocks: the composite
// health checker and middleware.
//
// # Health Checks
//
// Checks run in parallel, each under its own timeout. A critical check
// failing makes the service unhealthy and not ready; a non-critical one only
// marks it degraded:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("postgres", handlers.NewPingCheck(conn))
//	checker.AddNonCriticalCheck("redis", handlers.NewPingCheck(cache))
//
// # API Keys
//
// Admission endpoints can be guarded by API keys. Only bcrypt hashes are
// configured; generate them with HashAPIKey (or `admissionctl apikey hash`):
//
//	auth, err := handlers.NewAPIKeyAuth("X-API-Key", cfg.APIKeyHashes)
//	protected := auth.Middleware(admitHandler)
//
// # Middleware
//
//	h := handlers.Chain(mux,
//	    handlers.SecurityHeaders,
//	    handlers.RequestSizeLimit(1<<20),
//	    handlers.RequestTimeout(15*time.Second),
//	)
package handlers
