// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - SourceEnumerator: Lists watched documents with their versions
//   - Processor: Handles one document; supplied to the change scheduler
//   - DocumentStore: Reads and writes annotated documents
//   - ConfigStore: Application configuration
//   - PromptStore: Prompt templates
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EmbeddingService: Generates vector embeddings. Without it, page-context
//     assistants always fail and are retried.
//   - EmbeddingStore: Durable copy of the embedding cache. Without it, the
//     cache is rebuilt after every restart.
//   - ProcessedStore: Durable processed versions and completion history.
//   - LLMService: Language model calls. Without it, no annotation is answered.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
