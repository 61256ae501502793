// Package config loads nixmate's configuration.
//
// Configuration is layered: built-in defaults (GetDefaultConfig), then
// config.yaml from the configuration directory (~/.config/nixmate unless
// --config-path is given), then NIXMATE_* environment variables. The result is
// validated before use; invalid values are reported together as a
// ConfigurationErrorCollection.
//
// Example config.yaml:
//
//	enhanced: true
//	nativeAPIPath: /nix/var/nix/profiles
//	cache:
//	  ttl: 300s
//	  kindTTL:
//	    search: 60s
//	  persistentDir: /var/cache/nixmate
//	executor:
//	  workers: 4
//	  timeouts:
//	    build: 90m
//	security:
//	  allowedRoots: [/etc/nixos, /home]
package config
