package immich

import "context"

// CredentialStore keeps the API key across runs
type CredentialStore interface {
	LoadCredential() (string, error)
	SaveCredential(key string) error
	ClearCredential() error
}

// CredentialPrompter asks the user for an API key. An empty key means
// the user declined.
type CredentialPrompter interface {
	PromptCredential(ctx context.Context) (string, error)
}

// PromptFunc adapts a function to CredentialPrompter
type PromptFunc func(ctx context.Context) (string, error)

func (f PromptFunc) PromptCredential(ctx context.Context) (string, error) {
	return f(ctx)
}
