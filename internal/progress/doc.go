// Package progress carries run and task lifecycle events from the dispatcher
// and pipeline to pluggable sinks. Emitting never blocks a task: events are
// buffered and flushed in batches on a background goroutine.
package progress
