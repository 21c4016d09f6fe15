// Package agent contains the query orchestrator: one natural-language query
// goes through a first LLM round with the role's tool definitions, the
// requested tools run sequentially against the event backend, and a second
// LLM round turns the formatted results into the final answer.
package agent
