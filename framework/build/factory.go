package build

import (
	"errors"
	"fmt"

	rerrors "github.com/km-arc/go-resolve/framework/errors"
	"github.com/km-arc/go-resolve/framework/registry"
)

// Factory turns p into a registry factory. Each construction describes p once,
// resolves dependency parameters through the call-bound resolver, reads state
// parameters from the call's runtime arguments and then builds.
func Factory(p Provider) registry.Factory {
	return func(r registry.Resolver) (any, error) {
		args, err := Assemble(p.Describe(), r)
		if err != nil {
			return nil, err
		}
		return p.Build(args)
	}
}

// Assemble produces the argument values of plan.
func Assemble(plan Plan, r registry.Resolver) ([]any, error) {
	args := make([]any, len(plan.Params))
	for i, prm := range plan.Params {
		switch prm.Source {
		case Dependency:
			v, err := r.Resolve(prm.Key)
			if err != nil {
				if prm.Optional && errors.Is(err, rerrors.ErrNotRegistered) {
					continue
				}
				return nil, fmt.Errorf("parameter %d (%s): %w", i, prm, err)
			}
			args[i] = v
		case State:
			v, ok := r.Call().Arg(prm.State.Index())
			if !ok {
				if !prm.HasDefault {
					return nil, fmt.Errorf("parameter %d (%s): no runtime argument supplied", i, prm)
				}
				v = prm.Default
			}
			args[i] = v
		}
	}
	return args, nil
}
