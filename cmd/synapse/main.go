// Synapse is a self-hosted AI inference gateway. It fronts a fleet of
// local inference backends (LLM runtime, embeddings, TTS, STT, speaker
// analysis, audio cleanup) behind one stable HTTP surface, providing:
//   - Resilient backend fan-out with retries and per-backend circuit breakers
//   - Model lifecycle orchestration on a single-slot LLM runtime
//   - A cloned-voice reference library with upload caching
//   - A live multi-replica terminal log feed over SSE
//
// Usage:
//
//	# Start the gateway with default configuration
//	synapse run
//
//	# Start with a custom configuration file
//	synapse run --config /etc/synapse/backends.yaml
//
//	# Validate configuration without starting
//	synapse validate
//
//	# Show version information
//	synapse version
package main

func main() {
	Execute()
}
