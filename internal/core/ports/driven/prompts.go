package driven

// PromptStore provides access to LLM prompt templates.
// Implementations may load prompts from files or embed them in the binary.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}

// Well-known prompt names used throughout the application.
const (
	// PromptGroundedSystem restricts the model to the supplied passages.
	// No format placeholders.
	PromptGroundedSystem = "grounded_system"

	// PromptUngroundedSystem is used when a session has no documents.
	// No format placeholders.
	PromptUngroundedSystem = "ungrounded_system"

	// PromptRefusal is the fixed answer for sessions without documents
	// when the empty scope policy is "refuse".
	PromptRefusal = "refusal"
)

// PromptStoreAware is an optional interface for services that can use custom prompts.
type PromptStoreAware interface {
	// SetPromptStore sets the prompt store for loading customisable prompts.
	SetPromptStore(store PromptStore)
}
