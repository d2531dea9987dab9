package toolmanager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harun/daisy/internal/observability"
	"github.com/harun/daisy/internal/tracing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Manager owns the tool registry and dispatches calls to it.
type Manager struct {
	mu       sync.RWMutex
	tools    map[string]*entry
	order    []string
	declared map[string]string
	aliases  map[string]string
	frozen   atomic.Bool
	logger   zerolog.Logger
}

type entry struct {
	name    string
	tool    Tool
	schemas map[string]*gojsonschema.Schema
}

// Option configures a Manager.
type Option func(*Manager)

// WithAliases routes the given call names to differently named registered
// tools. The table is fixed for the lifetime of the manager.
func WithAliases(aliases map[string]string) Option {
	return func(m *Manager) {
		for from, to := range aliases {
			m.aliases[from] = to
		}
	}
}

// WithLogger sets the logger used for registration and dispatch events.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// New creates an empty Manager.
func New(opts ...Option) *Manager {
	observability.EnsureRegistered()

	m := &Manager{
		tools:    make(map[string]*entry),
		declared: make(map[string]string),
		aliases:  make(map[string]string),
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a tool under name. Duplicate names, duplicate declaration
// names and registration after Freeze fail with ErrInvalidState. An empty
// name, a nil tool or a malformed declaration fails with ErrInvalidParameter.
func (m *Manager) Register(name string, tool Tool) error {
	if name == "" {
		return invalidParameter(name, "tool name cannot be empty")
	}
	if tool == nil {
		return invalidParameter(name, "tool %s cannot be nil", name)
	}

	decls := tool.Declarations()
	schemas := make(map[string]*gojsonschema.Schema, len(decls))
	for _, decl := range decls {
		if decl.Name == "" {
			return invalidParameter(name, "tool %s: declaration name cannot be empty", name)
		}
		if decl.Description == "" {
			return invalidParameter(name, "tool %s: declaration %s has no description", name, decl.Name)
		}
		if _, dup := schemas[decl.Name]; dup {
			return invalidParameter(name, "tool %s declares %s twice", name, decl.Name)
		}
		schema, err := compile(decl.Parameters)
		if err != nil {
			return &Error{
				Kind:    KindInvalidParameter,
				Tool:    name,
				Message: fmt.Sprintf("tool %s: invalid parameters for %s: %v", name, decl.Name, err),
				Err:     err,
			}
		}
		schemas[decl.Name] = schema
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen.Load() {
		return invalidState(name, "registry is frozen, cannot register %s", name)
	}
	if _, exists := m.tools[name]; exists {
		return invalidState(name, "tool with name '%s' already registered", name)
	}
	for declName := range schemas {
		if owner, taken := m.declared[declName]; taken {
			return invalidState(name, "declaration %s of tool %s is already declared by tool %s", declName, name, owner)
		}
	}

	m.tools[name] = &entry{name: name, tool: tool, schemas: schemas}
	m.order = append(m.order, name)
	for declName := range schemas {
		m.declared[declName] = name
	}

	m.logger.Info().Str("tool", name).Int("declarations", len(decls)).Msg("Tool registered")
	return nil
}

// Lookup returns the tool registered under name, ignoring aliases.
func (m *Manager) Lookup(name string) (Tool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.tools[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// Resolve maps a call name to the registry name that will serve it.
func (m *Manager) Resolve(callName string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e := m.resolveLocked(callName)
	if e == nil {
		return "", false
	}
	return e.name, true
}

func (m *Manager) resolveLocked(callName string) *entry {
	if target, ok := m.aliases[callName]; ok {
		return m.tools[target]
	}
	return m.tools[callName]
}

// Freeze ends the registration phase. It is called by the first dispatch and
// is safe to call more than once.
func (m *Manager) Freeze() {
	if m.frozen.Load() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen.Load() {
		return
	}
	m.frozen.Store(true)

	for _, name := range m.order {
		for declName := range m.tools[name].schemas {
			if e := m.resolveLocked(declName); e == nil || e.name != name {
				m.logger.Warn().
					Str("tool", name).
					Str("declaration", declName).
					Msg("Declared name does not resolve to its tool")
			}
		}
	}
	for from, to := range m.aliases {
		if _, ok := m.tools[to]; !ok {
			m.logger.Warn().Str("alias", from).Str("target", to).Msg("Alias targets an unregistered tool")
		}
	}
}

// Declarations returns every registered tool's declarations, in registration order.
func (m *Manager) Declarations() []Declaration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	decls := make([]Declaration, 0, len(m.declared))
	for _, name := range m.order {
		decls = append(decls, m.tools[name].tool.Declarations()...)
	}
	return decls
}

// Names returns the registry names in registration order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]string(nil), m.order...)
}

// Count returns the number of registered tools.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.tools)
}

// Execute resolves and runs a call, returning the tool's value or a typed *Error.
func (m *Manager) Execute(ctx context.Context, call Call) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	m.Freeze()

	m.mu.RLock()
	e := m.resolveLocked(call.Name)
	m.mu.RUnlock()

	if e == nil {
		m.logger.Error().Str("tool", call.Name).Str("call_id", call.ID).Msg("Tool not found")
		observability.RecordToolDispatch(call.Name, "unknown", 0)
		return nil, invalidParameter(call.Name, "Unknown tool: %s", call.Name)
	}

	if err := validateArgs(e.schemaFor(call.Name), call.Args); err != nil {
		m.logger.Warn().Str("tool", e.name).Str("call", call.Name).Err(err).Msg("Parameter validation failed")
		observability.RecordToolDispatch(e.name, "invalid_args", 0)
		return nil, &Error{
			Kind:    KindToolExecution,
			Tool:    e.name,
			Message: fmt.Sprintf("parameter validation failed for %s: %v", call.Name, err),
			Err:     err,
		}
	}

	ctx, span := tracing.StartSpan(ctx, "toolmanager", "tool.dispatch",
		attribute.String("tool.name", e.name),
		attribute.String("tool.call", call.Name),
		attribute.String("tool.call_id", call.ID),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, m.logger)
	logger.Debug().Str("tool", e.name).Str("call", call.Name).Str("call_id", call.ID).Msg("Executing tool")

	start := time.Now()
	result, err := runTool(contextWithCall(ctx, call), e.tool, call.Args)
	duration := time.Since(start)

	if err != nil {
		typed := WrapExecution(e.name, err)
		span.RecordError(typed)
		span.SetStatus(codes.Error, typed.Message)
		observability.RecordToolDispatch(e.name, "error", duration)
		logger.Error().
			Str("tool", e.name).
			Str("call_id", call.ID).
			Dur("duration", duration).
			Err(err).
			Msg("Tool execution failed")
		return nil, typed
	}

	span.SetStatus(codes.Ok, "")
	observability.RecordToolDispatch(e.name, "success", duration)
	logger.Debug().
		Str("tool", e.name).
		Str("call_id", call.ID).
		Dur("duration", duration).
		Msg("Tool execution completed")
	return result, nil
}

// Dispatch runs a call and wraps its outcome in an envelope keyed by call.ID.
// It never fails: every error becomes an error payload.
func (m *Manager) Dispatch(ctx context.Context, call Call) Response {
	result, err := m.Execute(ctx, call)
	if err != nil {
		return Single(call.ID, Payload{Error: errorMessage(err)})
	}
	return Single(call.ID, Payload{Output: result})
}

func (e *entry) schemaFor(callName string) *gojsonschema.Schema {
	if schema, ok := e.schemas[callName]; ok {
		return schema
	}
	if len(e.schemas) == 1 {
		for _, schema := range e.schemas {
			return schema
		}
	}
	return nil
}

func runTool(ctx context.Context, tool Tool, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = ExecutionError("tool panicked: %v", r)
		}
	}()
	if args == nil {
		args = map[string]any{}
	}
	return tool.Execute(ctx, args)
}

func errorMessage(err error) string {
	msg := err.Error()
	if msg == "" {
		return fmt.Sprintf("%s error", KindOf(err))
	}
	return msg
}
