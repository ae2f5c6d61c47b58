// Package tools implements the named-tool registry: schema-validated,
// quota-limited, deadline-bounded operations over the upstream clients and
// the report service. The registry owns dispatch mechanics only; handlers
// are thin wrappers with no business logic of their own.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/time/rate"

	"github.com/sprintforge/sprintforge/internal/upstream"
)

// DefaultToolDeadline bounds one tool invocation wall-clock.
const DefaultToolDeadline = 60 * time.Second

// ErrUnknownTool indicates an invocation named an unregistered tool.
var ErrUnknownTool = errors.New("unknown tool")

// ErrToolQuotaExceeded indicates the tool's per-minute quota is spent.
var ErrToolQuotaExceeded = errors.New("tool quota exceeded")

// Handler executes a validated tool invocation. The input is the raw JSON
// object that passed schema validation.
type Handler func(ctx context.Context, input json.RawMessage) (any, error)

// Tool declares a registry entry.
type Tool struct {
	Name        string
	Description string

	// InputSchema is a JSON Schema document validated before dispatch.
	// Empty means any object is accepted.
	InputSchema string

	// QuotaPerMinute caps invocations per minute; 0 means unlimited.
	QuotaPerMinute int

	// Deadline bounds handler execution; 0 uses DefaultToolDeadline.
	Deadline time.Duration

	Handler Handler
}

// ToolError is the enhanced error shape in response envelopes. Message is
// user-facing; Debug preserves the original error text.
type ToolError struct {
	Kind       string         `json:"kind"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
	Debug      string         `json:"debug,omitempty"`
}

// Envelope is the uniform tool response.
type Envelope struct {
	Success    bool       `json:"success"`
	Result     any        `json:"result,omitempty"`
	Error      *ToolError `json:"error,omitempty"`
	ToolName   string     `json:"toolName"`
	DurationMs int64      `json:"durationMs"`
}

// UsageStats is a point-in-time snapshot of one tool's invocation counters.
type UsageStats struct {
	Invocations     int64 `json:"invocations"`
	Errors          int64 `json:"errors"`
	TotalDurationMs int64 `json:"totalDurationMs"`
}

type registeredTool struct {
	Tool

	schema *gojsonschema.Schema
	quota  *rate.Limiter

	invocations atomic.Int64
	errorCount  atomic.Int64
	durationMs  atomic.Int64
}

// Registry holds the registered tools and dispatches invocations.
// Invoke is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*registeredTool
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{tools: map[string]*registeredTool{}, logger: logger}
}

// Register adds a tool, compiling its input schema. Registering a duplicate
// name or an invalid schema fails.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" || tool.Handler == nil {
		return fmt.Errorf("tool requires a name and a handler")
	}

	entry := &registeredTool{Tool: tool}

	if tool.InputSchema != "" {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(tool.InputSchema))
		if err != nil {
			return fmt.Errorf("compile schema for %s: %w", tool.Name, err)
		}

		entry.schema = schema
	}

	if tool.QuotaPerMinute > 0 {
		perSecond := rate.Limit(float64(tool.QuotaPerMinute) / 60.0)
		entry.quota = rate.NewLimiter(perSecond, tool.QuotaPerMinute)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name)
	}

	r.tools[tool.Name] = entry

	return nil
}

// Names returns the sorted registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Lookup returns the registered tool declaration by name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.tools[name]
	if !ok {
		return Tool{}, false
	}

	return entry.Tool, true
}

// Stats returns a usage snapshot per tool.
func (r *Registry) Stats() map[string]UsageStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]UsageStats, len(r.tools))
	for name, entry := range r.tools {
		stats[name] = UsageStats{
			Invocations:     entry.invocations.Load(),
			Errors:          entry.errorCount.Load(),
			TotalDurationMs: entry.durationMs.Load(),
		}
	}

	return stats
}

// Invoke dispatches one tool call: lookup, schema validation, quota check,
// deadline-bounded handler execution, envelope packaging. It never returns
// a Go error; every failure mode is an error envelope.
func (r *Registry) Invoke(ctx context.Context, name string, rawInput json.RawMessage) Envelope {
	started := time.Now()

	r.mu.RLock()
	entry, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return errorEnvelope(name, started, upstream.NewError(
			upstream.KindNotFound, "unknown tool: "+name, ErrUnknownTool), nil)
	}

	entry.invocations.Add(1)

	defer func() {
		entry.durationMs.Add(time.Since(started).Milliseconds())
	}()

	if len(rawInput) == 0 {
		rawInput = json.RawMessage("{}")
	}

	if entry.schema != nil {
		if envelope, ok := r.validate(entry, name, started, rawInput); !ok {
			entry.errorCount.Add(1)

			return envelope
		}
	}

	if entry.quota != nil && !entry.quota.Allow() {
		entry.errorCount.Add(1)

		return errorEnvelope(name, started, upstream.NewError(
			upstream.KindRateLimit, "tool quota exceeded for "+name, ErrToolQuotaExceeded), nil)
	}

	deadline := entry.Deadline
	if deadline <= 0 {
		deadline = DefaultToolDeadline
	}

	toolCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	result, err := entry.Handler(toolCtx, rawInput)
	if err != nil {
		entry.errorCount.Add(1)
		r.logger.Warn("tool invocation failed", "tool", name, "error", err)

		return errorEnvelope(name, started, err, nil)
	}

	return Envelope{
		Success:    true,
		Result:     result,
		ToolName:   name,
		DurationMs: time.Since(started).Milliseconds(),
	}
}

// validate runs the input through the tool's schema, building a validation
// envelope with field paths on failure.
func (r *Registry) validate(entry *registeredTool, name string, started time.Time, rawInput json.RawMessage) (Envelope, bool) {
	result, err := entry.schema.Validate(gojsonschema.NewBytesLoader(rawInput))
	if err != nil {
		return errorEnvelope(name, started, upstream.NewError(
			upstream.KindValidation, "input is not a valid JSON object", err), nil), false
	}

	if result.Valid() {
		return Envelope{}, true
	}

	fields := make([]string, 0, len(result.Errors()))
	for _, violation := range result.Errors() {
		fields = append(fields, violation.Field()+": "+violation.Description())
	}

	details := map[string]any{"fields": fields}

	return errorEnvelope(name, started, upstream.NewError(
		upstream.KindValidation, "input failed schema validation", nil), details), false
}

// kindSuggestions map taxonomy kinds to user-facing next steps.
var kindSuggestions = map[upstream.Kind]string{
	upstream.KindValidation:      "Fix the listed input fields and retry",
	upstream.KindNotFound:        "Verify the identifier exists upstream",
	upstream.KindAuth:            "Check the configured upstream credentials",
	upstream.KindRateLimit:       "Retry after a short backoff",
	upstream.KindCircuitOpen:     "The provider is cooling down; retry in about a minute",
	upstream.KindUpstreamFailure: "The upstream rejected the request; check the parameters",
	upstream.KindUpstreamTimeout: "The upstream is slow or unreachable; retry later",
}

// errorEnvelope maps a handler or dispatch error to the response shape.
// Typed errors keep their user-facing message; anything else is redacted to
// a generic message with the original text preserved in Debug.
func errorEnvelope(name string, started time.Time, err error, details map[string]any) Envelope {
	kind := upstream.KindOf(err)

	message := "tool execution failed"

	var typed *upstream.Error
	if errors.As(err, &typed) {
		message = typed.Message

		if details == nil && len(typed.Details) > 0 {
			details = typed.Details
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		message = "tool execution exceeded its deadline"
	}

	return Envelope{
		ToolName:   name,
		DurationMs: time.Since(started).Milliseconds(),
		Error: &ToolError{
			Kind:       string(kind),
			Message:    message,
			Details:    details,
			Suggestion: kindSuggestions[kind],
			Debug:      err.Error(),
		},
	}
}
