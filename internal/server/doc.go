// Package server is the HTTP boundary of the secure transfer service. It
// routes requests, authenticates and rate-limits callers, maps core errors
// to status codes, and exposes health and Prometheus endpoints.
package server
