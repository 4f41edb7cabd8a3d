// Package handlers contains HTTP health checking and reusable middleware.
//
// # Health Checks
//
// Liveness checks make the service unhealthy when they fail; readiness
// checks only take it out of rotation:
//
//	checker := handlers.NewCompositeHealthChecker("v0.1.0")
//	checker.AddCheck("storage", handlers.NewPingCheck(store))
//	checker.AddReadinessCheck("storage_breaker", handlers.NewBreakerCheck(store))
//
//	status := checker.Check(ctx)
//
// # Middleware
//
// Middlewares compose with Chain, outermost first:
//
//	h := handlers.Chain(
//	    handlers.SecurityHeadersMiddleware,
//	    handlers.RequestSizeLimitMiddleware(64<<10),
//	)(mux)
package handlers
