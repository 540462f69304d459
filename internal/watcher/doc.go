// Package watcher delivers filesystem change notifications for watched
// directories and files.
//
// The Watcher API is safe for concurrent use. Events for one path are
// debounced: a burst is delivered in order with consecutive duplicates
// collapsed, so callers see Created followed by Deleted rather than only the
// last operation. A directory watch receives events for its direct children
// and for the directory itself.
package watcher
