// Package watch notices generation changes made outside this process, such
// as a nixos-rebuild run from another shell, and drops the cached reads they
// make stale.
//
// The watcher observes the Nix profile directory with fsnotify. Events on
// system profile links map to cache.ResourceSystemProfile and events on the
// default user profile map to cache.ResourceUserProfile. Bursts of events are
// debounced into one invalidation. When the underlying watch breaks, it is
// re-armed with exponential backoff and everything it covers is invalidated,
// since events may have been missed meanwhile.
package watch
