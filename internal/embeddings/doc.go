// Package embeddings generates vector embeddings via pluggable providers.
//
// Supports TEI (text-embeddings-inference over HTTP) and the OpenAI
// embeddings API. A factory selects the provider at runtime with automatic
// dimension detection for common models. TEI requests pass through an
// optional client-side rate limiter.
package embeddings
