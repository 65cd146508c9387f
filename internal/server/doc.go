// Package server exposes the coordinator over HTTP. Fiber receives every
// request, the host router turns Host + URI into the absolute URL the
// application asked for, and the injected Interceptor decides how it is
// answered. Diagnostics live under /-/ and are registered by the routes
// subpackage.
package server
