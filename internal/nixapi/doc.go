// Package nixapi is the native system-management API.
//
// API is a blocking interface over Nix state. Native implements it by reading
// the system profile directly (generation links, their creation times and
// nixos-version files), re-pointing the profile link itself for rollbacks,
// and driving Nix primitives with --log-format internal-json so that build
// activity arrives as structured events rather than free text. Those events
// feed native progress reporting and give failures a precise message.
//
// Calls are not cancellable. The executor layer runs them on a worker pool
// and abandons the result when its caller gives up.
package nixapi
