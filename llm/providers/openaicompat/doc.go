// Package openaicompat implements llm.Provider for any endpoint that speaks
// the OpenAI chat-completions wire format (Anyscale, DeepInfra, vLLM,
// OpenAI itself). Only non-streaming completions and a models-list health
// probe are supported.
package openaicompat
