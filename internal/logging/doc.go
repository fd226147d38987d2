// Package logging provides a Zap-backed structured logger shared by the
// KNN core and its external boundary.
//
// Request-scoped correlation (trace/span id, country, partner) is attached
// via context.Context and merged into every log line by ContextFields, the
// same pattern the wider stack uses for tenant correlation.
package logging
