// Package key defines the value objects every registration and every query is
// matched on.
//
// # Contracts
//
// A Contract names a capability. It is usually derived from a Go type:
//
//	key.Of[Logger]()            // "<pkg>.Logger"
//	key.Of[*Config]()           // "*<pkg>.Config"
//	key.Named("config")         // arbitrary token
//
// Generic instantiations keep their arguments, so an open template registered
// for a family can be specialized later:
//
//	key.Of[Box[Cat]]()          // family "<pkg>.Box", args [Of[Cat]()]
//	key.OpenOf[Box[any]]()      // open template "<pkg>.Box" with arity 1
//
// # Composite keys
//
// A Composite groups contracts, tags and states as sets:
//
//	k := key.For(key.Of[DB]()).Tagged("primary")
//
// # Comparers
//
// Composite equality is delegated to a Comparer. Exact is the default;
// IgnoreTags, IgnoreStates and IgnoreBoth relax it. A comparer selected for one
// registration only widens what that registration matches.
package key
