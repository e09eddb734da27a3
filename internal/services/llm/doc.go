// Package llm talks to OpenAI-compatible HTTP model endpoints.
//
// Two request shapes are supported:
//   - Chat completions (OpenRouter by default). CompleteJSON asks for a JSON
//     object; CompleteText returns free-form content.
//   - Embeddings. Embed returns one vector per input string.
//
// # Retry Behaviour
//
// Requests are retried on HTTP 408/429/5xx, network timeouts and empty model
// content with exponential backoff (base 2s, max 10s, 3 attempts by default).
// Context cancellation aborts retries immediately. Exhausted retries surface
// as services.ErrTransient so callers can report a fatal stage failure.
//
// DecodeLLMJSON tolerates code fences and prose around the JSON payload.
package llm
