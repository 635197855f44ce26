// Package llmclient is the engine's sole LLM boundary: three calls
// (summarize, classify, agent_loop), each idempotent from the caller's
// perspective, wrapped in bounded exponential-backoff retry and a hard
// per-call deadline. Every other package talks to models only through
// the Client interface defined here.
package llmclient
