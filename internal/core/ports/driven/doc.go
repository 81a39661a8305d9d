// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - Normaliser / NormaliserRegistry: Extract text segments from uploads
//   - PostProcessor / PostProcessorPipeline: Clean and chunk segments into passages
//   - EmbeddingService: Turns passages and questions into vectors
//   - VectorIndex: Passage storage and scoped similarity search
//   - GenerationProvider: Streams answers (local or hosted)
//   - BlobStore: Raw upload bytes
//   - DocumentStore, SessionStore, MessageStore: Relational metadata
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - TokenCounter: Without it, messages are stored with a zero token count.
//   - PromptStore: Without it, built-in prompt templates are used.
//   - ProcessLock: Without it, recovery assumes no other process shares the stores.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
