package container

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	rerrors "github.com/km-arc/go-resolve/framework/errors"
)

// ── Module ────────────────────────────────────────────────────────────────────

// Module is a configuration unit: a named group of registrations that may
// depend on other modules.
//
//	type StorageModule struct{ container.BaseModule }
//
//	func (StorageModule) Apply(r container.Registrar) ([]container.Disposable, error) {
//		reg, err := r.Batch().
//			Add(key.Of[*sql.DB](), openDB, container.Lifetime(lifetime.AutoDisposing(lifetime.Singleton))).
//			Commit()
//		return []container.Disposable{reg}, err
//	}
type Module interface {
	// Dependencies returns modules that must be applied first.
	Dependencies(r Resolver) []Module
	// Apply performs the module's registrations in order.
	Apply(r Registrar) ([]Disposable, error)
}

// BaseModule is an embeddable Module without dependencies.
type BaseModule struct{}

func (BaseModule) Dependencies(Resolver) []Module { return nil }

// ModuleFunc adapts a function to a Module without dependencies.
type ModuleFunc func(r Registrar) ([]Disposable, error)

func (f ModuleFunc) Dependencies(Resolver) []Module { return nil }

func (f ModuleFunc) Apply(r Registrar) ([]Disposable, error) { return f(r) }

// Install applies modules and their dependencies depth-first, each module at
// most once per container (by identity). All registrations come back as one
// Disposable. If any module fails, everything this call applied is disposed in
// reverse order and the error is returned.
func (c *Container) Install(modules ...Module) (Disposable, error) {
	if c.Disposed() {
		return nil, rerrors.DisposedContainer(c.id, "install")
	}

	var (
		order []Module
		seen  = make(map[Module]struct{})
		visit func(m Module)
	)
	visit = func(m Module) {
		if m == nil {
			return
		}
		if isComparable(m) {
			if _, ok := seen[m]; ok {
				return
			}
			seen[m] = struct{}{}
			if c.installed(m) {
				return
			}
		}
		for _, dep := range m.Dependencies(c) {
			visit(dep)
		}
		order = append(order, m)
	}
	for _, m := range modules {
		visit(m)
	}

	var (
		applied Disposables
		marked  []Module
	)
	rollback := func() {
		_ = applied.Dispose()
		c.mu.Lock()
		for _, m := range marked {
			delete(c.modules, m)
		}
		c.mu.Unlock()
	}
	for _, m := range order {
		ds, err := m.Apply(c)
		applied = append(applied, ds...)
		if err != nil {
			rollback()
			c.logger.Warn("module install rolled back", zap.String("module", fmt.Sprintf("%T", m)), zap.Error(err))
			return nil, fmt.Errorf("module %T: %w", m, err)
		}
		if isComparable(m) {
			c.mu.Lock()
			c.modules[m] = struct{}{}
			c.mu.Unlock()
			marked = append(marked, m)
		}
		c.logger.Debug("module installed", zap.String("module", fmt.Sprintf("%T", m)))
	}
	return applied, nil
}

func (c *Container) installed(m Module) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.modules[m]
	return ok
}

func isComparable(m Module) bool {
	return reflect.TypeOf(m).Comparable()
}
