package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"nixmate/pkg/logging"
)

// ErrUnavailable means no probe produced a usable native API.
var ErrUnavailable = errors.New("native API unavailable")

// Handle locates a usable Nix installation.
type Handle struct {
	ProfileDir  string `json:"profile_dir"`
	NixBinDir   string `json:"nix_bin_dir,omitempty"`
	ChannelPath string `json:"channel_path,omitempty"`
	// Source names the probe that found the handle.
	Source string `json:"source"`
}

// Probe proposes a candidate Handle.
type Probe interface {
	Name() string
	// Probe returns ok=false when it has nothing to propose.
	Probe(ctx context.Context) (Handle, bool)
}

// CapabilityFunc verifies a candidate by calling a cheap read.
type CapabilityFunc func(Handle) error

// Resolver runs the probe chain once.
type Resolver struct {
	probes     []Probe
	capability CapabilityFunc

	once   sync.Once
	handle Handle
	err    error
}

// New creates a Resolver that tries probes in order.
func New(capability CapabilityFunc, probes ...Probe) *Resolver {
	return &Resolver{probes: probes, capability: capability}
}

// Resolve returns the first handle that passes the capability check, or an
// error wrapping ErrUnavailable. It never panics. Later calls return the
// first outcome.
func (r *Resolver) Resolve(ctx context.Context) (Handle, error) {
	r.once.Do(func() {
		r.handle, r.err = r.resolve(ctx)
	})
	return r.handle, r.err
}

func (r *Resolver) resolve(ctx context.Context) (Handle, error) {
	var reasons []string
	for _, p := range r.probes {
		if ctx.Err() != nil {
			reasons = append(reasons, "resolution cancelled")
			break
		}
		h, ok := r.safeProbe(ctx, p)
		if !ok {
			logging.Debug("Resolver", "Probe %s found nothing", p.Name())
			continue
		}
		h.Source = p.Name()
		if err := r.check(h); err != nil {
			logging.Debug("Resolver", "Probe %s proposed %s but it is not usable: %v", p.Name(), h.ProfileDir, err)
			reasons = append(reasons, fmt.Sprintf("%s: %v", p.Name(), err))
			continue
		}
		logging.Info("Resolver", "Using native API at %s (found by %s)", h.ProfileDir, h.Source)
		return h, nil
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "no probe found a Nix installation")
	}
	logging.Info("Resolver", "Native API unavailable, using subprocess fallback")
	return Handle{}, fmt.Errorf("%w: %s", ErrUnavailable, strings.Join(reasons, "; "))
}

func (r *Resolver) safeProbe(ctx context.Context, p Probe) (h Handle, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Warn("Resolver", "Probe %s panicked: %v", p.Name(), rec)
			h, ok = Handle{}, false
		}
	}()
	return p.Probe(ctx)
}

func (r *Resolver) check(h Handle) (err error) {
	if r.capability == nil {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("capability probe panicked: %v", rec)
		}
	}()
	return r.capability(h)
}
