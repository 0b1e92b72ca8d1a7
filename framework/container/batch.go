package container

import (
	"fmt"

	"github.com/km-arc/go-resolve/framework/key"
	"github.com/km-arc/go-resolve/framework/registry"
)

// Batch chains statements that commit together or not at all.
//
//	reg, err := c.Batch().
//		Add(key.Of[*Service2](), newService2, container.Lifetime(lifetime.Singleton)).
//		And(key.Of[*Service1](), newService1).
//		Commit()
type Batch struct {
	target     *Container
	statements []Registration
}

// Batch starts an empty batch on c.
func (c *Container) Batch() *Batch {
	return &Batch{target: c}
}

// Add appends a statement.
func (b *Batch) Add(contract key.Contract, factory registry.Factory, opts ...StatementOption) *Batch {
	b.statements = append(b.statements, Statement(contract, factory, opts...))
	return b
}

// And is Add, for readability in chains.
func (b *Batch) And(contract key.Contract, factory registry.Factory, opts ...StatementOption) *Batch {
	return b.Add(contract, factory, opts...)
}

// AddTemplate appends an open template statement.
func (b *Batch) AddTemplate(open key.Contract, specializer registry.Specializer, opts ...StatementOption) *Batch {
	b.statements = append(b.statements, TemplateStatement(open, specializer, opts...))
	return b
}

// Include appends prepared statements.
func (b *Batch) Include(statements ...Registration) *Batch {
	b.statements = append(b.statements, statements...)
	return b
}

// Len returns the number of statements.
func (b *Batch) Len() int { return len(b.statements) }

// Commit registers every statement atomically.
func (b *Batch) Commit() (Disposable, error) {
	return b.target.Register(b.statements...)
}

// ── Open templates ────────────────────────────────────────────────────────────

// Specialization is the factory of one concrete instantiation of a template.
type Specialization struct {
	Contract key.Contract
	Factory  registry.Factory
}

// Specialized pairs the instantiated type T with its typed factory.
//
//	container.Specialized(NewCardboardBox[Cat]) // T = Box[Cat]
func Specialized[T any](fn func(r Resolver) (T, error)) Specialization {
	return Specialization{Contract: key.Of[T](), Factory: Provide(fn)}
}

// Specializations builds a Specializer from a fixed set of instantiations,
// matched by generic arguments.
func Specializations(table ...Specialization) registry.Specializer {
	return func(args []key.Contract) (registry.Factory, error) {
	next:
		for _, s := range table {
			have := s.Contract.Args()
			if len(have) != len(args) {
				continue
			}
			for i := range args {
				if !have[i].Equal(args[i]) {
					continue next
				}
			}
			return s.Factory, nil
		}
		return nil, fmt.Errorf("no instantiation for arguments %v", args)
	}
}
