// Package container is the hierarchical resolution runtime: a registry of
// composite-keyed entries plus a resolver, linked to a parent container and to
// the children it creates.
//
// # Lifecycle
//
//  1. Create: c := container.New(container.WithLogger(logger))
//  2. Register: statements, batches or modules
//  3. Resolve: from c or from children created with c.CreateChild
//  4. Dispose: c.Dispose() tears down the whole subtree
//
// # Registering
//
//	// Transient: a new instance for every request
//	c.Bind(key.Of[*Handler](), container.Provide(func(r container.Resolver) (*Handler, error) {
//	    repo, err := container.Resolve[Repository](r)
//	    return &Handler{Repo: repo}, err
//	}))
//
//	// Singleton
//	c.Singleton(key.Of[*Cache](), container.Provide(newCache))
//
//	// Pre-built value, tagged
//	c.Instance(key.Named("dsn"), "postgres://...", container.Tagged("primary"))
//
//	// Constructor adapted through the build boundary
//	c.Bind(key.Of[*UserService](), build.Factory(build.Func2(NewUserService)))
//
//	// All-or-nothing batch
//	c.Batch().
//	    Add(key.Of[*Service2](), container.Provide(newService2), container.Lifetime(lifetime.Singleton)).
//	    And(key.Of[*Service1](), container.Provide(newService1)).
//	    Commit()
//
// Registering the same key again shadows the older entry; disposing the newer
// registration makes lookups fall through to the older one. WithConflictPolicy
// (registry.Reject) refuses duplicates instead.
//
// # Resolving
//
//	svc, err := container.Resolve[*Service1](c)
//	all, err := container.ResolveAll[Plugin](c)
//	lazy := container.Lazy[*Report](c)
//	fut  := container.Async[*Index](c)
//
// Factories must resolve their dependencies through the Resolver they receive.
// It carries the resolve-call identity used for per-resolve caching and for
// circular dependency detection.
//
// # Open generics
//
//	c.Template(key.OpenOf[Box[any]](), container.Specializations(
//	    container.Specialized(NewCardboardBox[Cat]),
//	))
//	box, err := container.Resolve[Box[Cat]](c)
//
// # Scopes
//
// scope.Global entries (the default) are visible to the registering container
// and all of its descendants. scope.Internal entries are visible only to
// requests that start in the registering container.
//
// # Modules
//
//	reg, err := c.Install(&StorageModule{}, &HTTPModule{})
//	defer reg.Dispose()
package container
