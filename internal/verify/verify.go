// Package verify checks that an extension registered the components it
// declares.
package verify

import (
	"k8s.io/apimachinery/pkg/util/sets"
)

// Result is the outcome of Verify. It is never mutated after creation.
type Result struct {
	Expected []string
	Actual   sets.Set[string]
	// Missing lists expected names absent from Actual, sorted.
	Missing []string
}

// OK reports whether every expected component is registered.
func (r Result) OK() bool { return len(r.Missing) == 0 }

// Verify succeeds iff expected is a subset of actual. Extra registered
// components are tolerated; every missing one is reported.
func Verify(expected []string, actual sets.Set[string]) Result {
	if actual == nil {
		actual = sets.New[string]()
	}
	missing := sets.New(expected...).Difference(actual)
	return Result{
		Expected: append([]string(nil), expected...),
		Actual:   actual,
		Missing:  sets.List(missing),
	}
}
