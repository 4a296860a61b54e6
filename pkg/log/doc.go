// Package log provides the structured logger shared by every corestate
// component, wrapping zerolog with a small set of domain-scoped child
// logger constructors (store, container, snapshot).
package log
