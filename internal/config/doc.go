// Package config loads the per-agent configuration from JSON or YAML files and
// fills in defaults for the LLM service, the event backend, the inter-agent
// transport and the exchange journal.
package config
