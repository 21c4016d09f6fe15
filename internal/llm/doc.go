// Package llm defines the provider-neutral chat completion contract used by
// the agents: transcripts of user, assistant and tool messages, tool
// definitions, and the Client interface implemented by the OpenAI-compatible
// and Anthropic adapters.
package llm
