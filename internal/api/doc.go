// Package api exposes the agent's REST surface: the /chat endpoint, the
// /submit endpoint peers use to deliver envelopes over HTTP, health, the
// exchange journal and Prometheus metrics.
package api
