// Package mock provides test doubles shared across packages: a controllable
// clock and a scriptable native API.
package mock
