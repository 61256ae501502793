// Package security validates operations before any executor sees them.
//
// Validation is a pure function of the operation and the ambient privilege
// context. It rejects shell metacharacters and known-dangerous substrings in
// every string option, restricts package names and search queries to a small
// character class, keeps path options inside configured roots, requires an
// explicit confirm flag for forced destructive requests, and refuses
// privileged kinds when the process is not elevated. It never escalates.
package security
