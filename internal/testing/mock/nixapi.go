package mock

import (
	"sync"

	"nixmate/internal/nixapi"
	"nixmate/internal/operation"
)

// API is a scriptable nixapi.API. Functions left nil succeed with zero
// values. Calls are counted by method name.
type API struct {
	ListGenerationsFunc func() ([]operation.Generation, error)
	SearchPackagesFunc  func(query string, limit int) ([]operation.Package, error)
	BuildFunc           func(req nixapi.BuildRequest, progress nixapi.ProgressFunc) (string, error)
	SwitchFunc          func(req nixapi.BuildRequest, progress nixapi.ProgressFunc) (string, error)
	RollbackFunc        func(generation int, progress nixapi.ProgressFunc) (int, error)
	InstallFunc         func(pkg string, progress nixapi.ProgressFunc) error
	RemoveFunc          func(pkg string, progress nixapi.ProgressFunc) error
	RepairFunc          func(checkContents bool, progress nixapi.ProgressFunc) error
	DryRunFunc          func(req nixapi.BuildRequest) ([]string, error)
	CollectGarbageFunc  func() error

	mu    sync.Mutex
	calls map[string]int
}

var _ nixapi.API = (*API)(nil)

func (a *API) record(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.calls == nil {
		a.calls = make(map[string]int)
	}
	a.calls[name]++
}

// Calls returns how often the named method ran.
func (a *API) Calls(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[name]
}

func (a *API) ListGenerations() ([]operation.Generation, error) {
	a.record("ListGenerations")
	if a.ListGenerationsFunc == nil {
		return nil, nil
	}
	return a.ListGenerationsFunc()
}

func (a *API) SearchPackages(query string, limit int) ([]operation.Package, error) {
	a.record("SearchPackages")
	if a.SearchPackagesFunc == nil {
		return nil, nil
	}
	return a.SearchPackagesFunc(query, limit)
}

func (a *API) Build(req nixapi.BuildRequest, progress nixapi.ProgressFunc) (string, error) {
	a.record("Build")
	if a.BuildFunc == nil {
		return "", nil
	}
	return a.BuildFunc(req, progress)
}

func (a *API) Switch(req nixapi.BuildRequest, progress nixapi.ProgressFunc) (string, error) {
	a.record("Switch")
	if a.SwitchFunc == nil {
		return "", nil
	}
	return a.SwitchFunc(req, progress)
}

func (a *API) Rollback(generation int, progress nixapi.ProgressFunc) (int, error) {
	a.record("Rollback")
	if a.RollbackFunc == nil {
		return generation, nil
	}
	return a.RollbackFunc(generation, progress)
}

func (a *API) Install(pkg string, progress nixapi.ProgressFunc) error {
	a.record("Install")
	if a.InstallFunc == nil {
		return nil
	}
	return a.InstallFunc(pkg, progress)
}

func (a *API) Remove(pkg string, progress nixapi.ProgressFunc) error {
	a.record("Remove")
	if a.RemoveFunc == nil {
		return nil
	}
	return a.RemoveFunc(pkg, progress)
}

func (a *API) Repair(checkContents bool, progress nixapi.ProgressFunc) error {
	a.record("Repair")
	if a.RepairFunc == nil {
		return nil
	}
	return a.RepairFunc(checkContents, progress)
}

func (a *API) DryRun(req nixapi.BuildRequest) ([]string, error) {
	a.record("DryRun")
	if a.DryRunFunc == nil {
		return nil, nil
	}
	return a.DryRunFunc(req)
}

func (a *API) CollectGarbage() error {
	a.record("CollectGarbage")
	if a.CollectGarbageFunc == nil {
		return nil
	}
	return a.CollectGarbageFunc()
}
