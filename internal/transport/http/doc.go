// Package http implements the HTTP handlers of the web service. Handlers are
// thin: they parse requests, delegate to the service layer, translate service
// sentinel errors into API errors, and render JSON responses with
// go-chi/render. All business logic lives in internal/services and below.
package http
