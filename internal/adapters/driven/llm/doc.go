// Package llm holds what the generation provider adapters share: request
// rate limiting and the mapping of backend failures onto
// domain.ErrProviderUnavailable.
//
// The adapters live in subpackages:
//   - ollama: local models over the Ollama /api/chat stream
//   - openai: hosted models through the OpenAI SDK
//   - anthropic: hosted models over the Messages API event stream
package llm
