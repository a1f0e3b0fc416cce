package vm

import (
	"strings"
)

// Env is a persistent environment: an immutable singly-linked chain of
// bindings, most recent first. The nil *Env is the empty environment.
//
// Nodes are never mutated once created, so closures capture an Env by
// pointer and share any common tail.
type Env struct {
	name  string
	value Value
	next  *Env
}

// Lookup returns the first binding for name.
func (e *Env) Lookup(name string) (Value, bool) {
	for n := e; n != nil; n = n.next {
		if n.name == name {
			return n.value, true
		}
	}
	return nil, false
}

// Insert returns a new environment with name bound to value. The first
// existing binding for name is removed: the nodes before it are copied,
// everything after it is shared with the receiver. When name is unbound
// the whole receiver is shared.
func (e *Env) Insert(name string, value Value) *Env {
	return &Env{name: name, value: value, next: e.without(name)}
}

// without returns e minus the first binding for name.
func (e *Env) without(name string) *Env {
	var prefix []*Env
	n := e
	for ; n != nil && n.name != name; n = n.next {
		prefix = append(prefix, n)
	}
	if n == nil {
		return e
	}

	tail := n.next
	for i := len(prefix) - 1; i >= 0; i-- {
		tail = &Env{name: prefix[i].name, value: prefix[i].value, next: tail}
	}
	return tail
}

// Len returns the number of bindings.
func (e *Env) Len() int {
	count := 0
	for n := e; n != nil; n = n.next {
		count++
	}
	return count
}

// Names returns the bound names, most recent first.
func (e *Env) Names() []string {
	var names []string
	for n := e; n != nil; n = n.next {
		names = append(names, n.name)
	}
	return names
}

// String renders the user bindings (natives are omitted).
func (e *Env) String() string {
	var b strings.Builder
	first := true
	for n := e; n != nil; n = n.next {
		if _, ok := n.value.(*Native); ok {
			continue
		}
		if !first {
			b.WriteByte(' ')
		}
		first = false
		b.WriteString(n.name)
		b.WriteByte('=')
		b.WriteString(n.value.String())
	}
	return b.String()
}
