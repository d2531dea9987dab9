// Package toolmanager registers tools and dispatches model function calls to them.
//
// Invariants:
// - Tool names are unique. A second registration under the same name fails with
//   ErrInvalidState and the first tool stays resolvable.
// - The registry freezes on the first dispatch; registration after that fails.
// - Dispatch never returns an error: unknown tools and tool failures become an
//   error payload keyed by the call id.
// - Arguments are schema-validated against the called declaration before execution.
//
// Usage:
//
//	mgr := toolmanager.New(toolmanager.WithAliases(map[string]string{"saveScribe": "documents"}))
//	_ = mgr.Register("documents", docsTool)
//	resp := mgr.Dispatch(ctx, toolmanager.Call{Name: "saveScribe", Args: args, ID: "call-1"})
//	_ = resp
package toolmanager
