// Package api handles incoming HTTP and websocket requests, routing,
// request validation, and response formatting. It acts as an adapter between
// the browser client and the internal application services, translating
// transport concerns to recording and intake operations.
package api
