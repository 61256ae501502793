// Package resolver locates the native Nix API at startup.
//
// A Resolver walks an ordered chain of probes (explicit override, well-known
// profile locations, a nix-instantiate lookup of the nixpkgs channel). Each
// probe proposes a Handle; the first one that passes the capability check
// wins. When none does, Resolve returns ErrUnavailable, which is not a
// failure: callers switch to the subprocess executor. The outcome is
// computed once and remembered.
package resolver
