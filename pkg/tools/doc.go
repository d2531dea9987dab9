// Package tools implements the assistant's built-in tools and registers them
// with a toolmanager.Manager.
//
// Invariants:
// - Every tool is registered even when its collaborator is not configured;
//   it then fails at call time with an error naming the missing setting.
// - Secrets arrive through Options only; nothing here reads the environment.
// - Collaborator calls are attempted once. Failures surface unretried.
//
// Usage:
//
//	mgr := toolmanager.New(toolmanager.WithAliases(tools.DefaultAliases()))
//	if err := tools.RegisterDefaults(mgr, tools.Options{Documents: store}); err != nil {
//		return err
//	}
package tools
