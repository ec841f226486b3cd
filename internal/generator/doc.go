// Package generator produces the document-relative context and summary that
// are attached to each chunk before its contextual embedding is computed.
//
// ClaudeClient calls the Anthropic Messages API and makes a single attempt
// per Generate; callers decide on retries with IsRetryable. Extractive is an
// offline, deterministic fallback used when no API key is configured.
//
// The model is asked to answer as
//
//	CONTEXT: <context>
//	SUMMARY: <summary>
//
// and ParseResponse tolerates code fences, bold markers and fullwidth colons.
package generator
