// Package model defines the provider-agnostic abstractions for talking to
// language models.
//
//   - One Generate method for streaming and non-streaming providers
//   - Normalized tool definitions and structured output schemas
//   - ScriptedModel for deterministic tests and offline runs
//
// Providers (openai, anthropic) live in sub-packages so the runner and the
// desk stay decoupled from vendor SDKs.
package model
