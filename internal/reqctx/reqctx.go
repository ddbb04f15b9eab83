// Package reqctx carries bring-your-own-key (BYOK) credentials through a
// request and every background unit it spawns.
//
// The source this engine was modeled on stores these in a goroutine-local
// (contextvars / context.Context value) so they survive fan-out implicitly.
// That's fragile in Go: a value stashed in a context.Context is easy to drop
// when a new context.Background() is created for a detached background
// task, and it's invisible at every call site that might need it. Instead
// Keys is captured once at the HTTP handler (or wherever a task or scout run
// originates) and threaded explicitly as an argument into the task service,
// the engine, and every worker/supervisor invocation it fans out — including
// copies handed to child goroutines. A reader can see, from a function
// signature alone, whether a code path depends on per-request credentials.
package reqctx

// Keys holds the three known provider credential families. Any that are
// empty fall back to the engine's server-side defaults for that provider.
type Keys struct {
	OpenAI    string
	Anthropic string
	Google    string
}

// ForProvider returns the BYOK key for the named provider, or "" if none was
// supplied.
func (k Keys) ForProvider(provider string) string {
	switch provider {
	case "openai", "openrouter":
		return k.OpenAI
	case "anthropic":
		return k.Anthropic
	case "google":
		return k.Google
	default:
		return ""
	}
}

// Empty reports whether no BYOK credentials were supplied, i.e. the caller
// relies entirely on server-side defaults.
func (k Keys) Empty() bool {
	return k.OpenAI == "" && k.Anthropic == "" && k.Google == ""
}
