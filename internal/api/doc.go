// Package api implements the HTTP REST API and WebSocket server for Synced Select.
//
// This package provides:
//   - REST endpoints for config entry management, manual selections and refreshes
//   - Source discovery (select entities usable as sources)
//   - WebSocket hub broadcasting proxy state changes
//   - Bearer JWT authentication with a pre-shared HS256 secret
//   - Middleware stack (request ID, logging, recovery, CORS, body limit, rate limit)
//   - TLS support for production deployments
//
// # Endpoints
//
//	GET    /api/v1/health                     no auth
//	GET    /api/v1/sources?exclude_entry=ID
//	GET    /api/v1/entries
//	POST   /api/v1/entries                    {"name": "...", "entities": [...]}
//	GET    /api/v1/entries/{id}
//	DELETE /api/v1/entries/{id}
//	PUT    /api/v1/entries/{id}/options       {"entities": [...]}
//	POST   /api/v1/entries/{id}/select        {"option": "..."}
//	POST   /api/v1/entries/{id}/refresh
//	GET    /api/v1/ws?token=JWT
//
// Errors are returned as {"status": 404, "code": "not_found", "message": "..."}.
//
// # Lifecycle
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Tokens are minted with IssueToken (the "token" CLI command wraps it).
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
