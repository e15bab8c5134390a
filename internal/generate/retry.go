package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"campaignsmith/internal/logging"
)

// DefaultMaxAttempts is the retry budget when none is configured.
const DefaultMaxAttempts = 5

// GenerateFunc produces raw text for a prompt.
type GenerateFunc func(ctx context.Context, prompt string) (string, error)

// ValidateFunc checks a decoded result. A nil return accepts the result.
type ValidateFunc[T any] func(T) error

// AttemptFailure records why one attempt failed.
type AttemptFailure struct {
	Attempt  int
	Category ErrorCategory
	Reason   string
}

// ExhaustedError is the single terminal error after the attempt budget is
// spent. It carries every attempt's reason so systematic failure is
// distinguishable from flaky failure.
type ExhaustedError struct {
	MaxAttempts int
	Failures    []AttemptFailure
}

func (e *ExhaustedError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "generation failed after %d attempts:", e.MaxAttempts)
	for _, f := range e.Failures {
		fmt.Fprintf(&sb, " [attempt %d, %s: %s]", f.Attempt, f.Category, f.Reason)
	}
	return sb.String()
}

// Generator wraps an LLM client with a bounded self-correction retry loop.
type Generator struct {
	client         LLMClient
	maxAttempts    int
	attemptTimeout time.Duration
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithMaxAttempts overrides the attempt budget.
func WithMaxAttempts(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithAttemptTimeout bounds each generate call. A timeout is an ordinary
// retryable failure, not an abort.
func WithAttemptTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) { g.attemptTimeout = d }
}

// NewGenerator creates a Generator over the given client.
func NewGenerator(client LLMClient, opts ...GeneratorOption) *Generator {
	g := &Generator{client: client, maxAttempts: DefaultMaxAttempts}
	for _, o := range opts {
		o(g)
	}
	return g
}

// attempt outcome tagged value: classification and control flow are kept
// separate so the loop below never re-inspects error text.
type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeRetryable
	outcomeFatal
)

type attemptOutcome[T any] struct {
	kind     outcomeKind
	value    T
	category ErrorCategory
	reason   string
	err      error
}

// Run drives the retry loop for one structured generation. The base prompt
// is re-issued on each retry with the attempt index, remaining budget, the
// raw prior error, and a category-specific corrective checklist appended.
// When T is string the raw (fence-stripped) text is returned without JSON
// decoding.
func Run[T any](ctx context.Context, g *Generator, basePrompt string, validate ValidateFunc[T]) (T, error) {
	return RunFunc(ctx, g.client.Complete, validate, g.maxAttempts, g.attemptTimeout, basePrompt)
}

// RunFunc is the generic retry loop over an arbitrary generate function.
func RunFunc[T any](ctx context.Context, generate GenerateFunc, validate ValidateFunc[T], maxAttempts int, attemptTimeout time.Duration, basePrompt string) (T, error) {
	var zero T
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var failures []AttemptFailure
	prompt := basePrompt

	for attempt := 0; attempt < maxAttempts; attempt++ {
		out := runAttempt(ctx, generate, validate, attemptTimeout, prompt)

		switch out.kind {
		case outcomeSuccess:
			if attempt > 0 {
				logging.Generate("attempt %d/%d succeeded after %d failures", attempt+1, maxAttempts, len(failures))
			}
			return out.value, nil

		case outcomeFatal:
			return zero, out.err

		case outcomeRetryable:
			failures = append(failures, AttemptFailure{
				Attempt:  attempt + 1,
				Category: out.category,
				Reason:   out.reason,
			})
			logging.GenerateWarn("attempt %d/%d failed (%s): %s", attempt+1, maxAttempts, out.category, out.reason)
			prompt = buildRetryPrompt(basePrompt, attempt+1, maxAttempts, out.reason, out.category)
		}
	}

	return zero, &ExhaustedError{MaxAttempts: maxAttempts, Failures: failures}
}

func runAttempt[T any](ctx context.Context, generate GenerateFunc, validate ValidateFunc[T], attemptTimeout time.Duration, prompt string) attemptOutcome[T] {
	attemptCtx := ctx
	if attemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, attemptTimeout)
		defer cancel()
	}

	raw, err := generate(attemptCtx, prompt)
	if err != nil {
		// Caller cancellation aborts; an attempt timeout is retryable.
		if errors.Is(ctx.Err(), context.Canceled) {
			return attemptOutcome[T]{kind: outcomeFatal, err: ctx.Err()}
		}
		return attemptOutcome[T]{
			kind:     outcomeRetryable,
			category: Classify(err.Error()),
			reason:   err.Error(),
		}
	}

	var result T
	if sp, isString := any(&result).(*string); isString {
		*sp = StripFences(raw)
	} else {
		cleaned, extractErr := ExtractJSON(raw)
		if extractErr != nil {
			return attemptOutcome[T]{
				kind:     outcomeRetryable,
				category: CategoryJSONParse,
				reason:   extractErr.Error(),
			}
		}
		if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
			return attemptOutcome[T]{
				kind:     outcomeRetryable,
				category: CategoryJSONParse,
				reason:   fmt.Sprintf("failed to parse JSON output: %v", err),
			}
		}
	}

	if validate != nil {
		if err := validate(result); err != nil {
			return attemptOutcome[T]{
				kind:     outcomeRetryable,
				category: Classify(err.Error()),
				reason:   err.Error(),
			}
		}
	}

	return attemptOutcome[T]{kind: outcomeSuccess, value: result}
}

// buildRetryPrompt concatenates the original prompt with the retry context.
func buildRetryPrompt(base string, attempt, maxAttempts int, priorError string, category ErrorCategory) string {
	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\n--- RETRY CONTEXT ---\n")
	fmt.Fprintf(&sb, "This is attempt %d of %d (%d remaining).\n", attempt+1, maxAttempts, maxAttempts-attempt-1)
	fmt.Fprintf(&sb, "Your previous answer failed with:\n%s\n", priorError)
	if checklist := ChecklistFor(category); checklist != "" {
		sb.WriteString("\n")
		sb.WriteString(checklist)
		sb.WriteString("\n")
	}
	return sb.String()
}
