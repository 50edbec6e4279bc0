// Package observability builds the zap loggers used across the gateway.
//
// Every component receives a *zap.Logger from the process entry point; request
// scoped fields (request_id, username, roles) are attached by the middleware.
package observability
