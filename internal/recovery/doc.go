// Package recovery classifies execution failures and applies the one safe
// remediation the system knows: when the store runs out of disk space it
// collects garbage and retries the operation exactly once. Network and
// permission failures are never retried; they only get a suggestion.
package recovery
