// Package value implements Fallen's tagged runtime value model (§3, §4.D):
// scalars by value, containers (List, Dict) shared by reference so that
// aliased bindings observe each other's mutations.
package value

import (
	"fmt"
	"strconv"
	"strings"
)

type Kind byte

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindStr
	KindList
	KindDict
	KindFunc
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindStr:
		return "Str"
	case KindList:
		return "List"
	case KindDict:
		return "Dict"
	case KindFunc:
		return "Func"
	default:
		return "?"
	}
}

// Value is the tagged union every Fallen expression evaluates to. Only one
// of the typed fields is meaningful, selected by Kind.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	List  *List
	Dict  *Dict
	Func  *Func
}

func Null() Value              { return Value{Kind: KindNull} }
func Bool(b bool) Value        { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value        { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value    { return Value{Kind: KindFloat, Float: f} }
func Str(s string) Value       { return Value{Kind: KindStr, Str: s} }
func FromList(l *List) Value   { return Value{Kind: KindList, List: l} }
func FromDict(d *Dict) Value   { return Value{Kind: KindDict, Dict: d} }
func FromFunc(fn *Func) Value  { return Value{Kind: KindFunc, Func: fn} }

// List is a mutable, insertion-ordered, shared sequence (§4.D: "shared
// references with reference-count semantics"). Go's garbage collector
// retires the refcount bookkeeping a manual implementation would need;
// sharing is achieved simply by every alias holding the same *List.
type List struct {
	Elements []Value
}

func NewList(elements []Value) *List {
	return &List{Elements: elements}
}

// Dict is a mutable, insertion-ordered, shared string-keyed map. keys
// records insertion order; lookup goes through the values Go map.
type Dict struct {
	keys   []string
	values map[string]Value
}

func NewDict() *Dict {
	return &Dict{values: make(map[string]Value)}
}

func (d *Dict) Get(key string) (Value, bool) {
	v, ok := d.values[key]
	return v, ok
}

func (d *Dict) Set(key string, v Value) {
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

func (d *Dict) Remove(key string) bool {
	if _, exists := d.values[key]; !exists {
		return false
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
	return true
}

func (d *Dict) Keys() []string {
	return d.keys
}

func (d *Dict) Len() int {
	return len(d.keys)
}

// Func is a reference to a compiled function's entry point, carried as a
// first-class Value (§3: "Func (reference to a bytecode entry)").
type Func struct {
	Name       string
	ParamNames []string
	EntryPoint int
}

// Truthy reports a Bool value's truth. Callers must only invoke this after
// confirming Kind == KindBool; conditions of other kinds are a type error
// handled by the caller (§3: "Truthiness... is only defined for Bool").
func (v Value) Truthy() bool {
	return v.Bool
}

// Equal implements Fallen's structural `==` (§3). Containers compare deep;
// Int/Float never compare equal across kinds (only ordering widens).
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindInt:
		return a.Int == b.Int
	case KindFloat:
		return a.Float == b.Float
	case KindStr:
		return a.Str == b.Str
	case KindList:
		if len(a.List.Elements) != len(b.List.Elements) {
			return false
		}
		for i := range a.List.Elements {
			if !Equal(a.List.Elements[i], b.List.Elements[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if a.Dict.Len() != b.Dict.Len() {
			return false
		}
		for _, k := range a.Dict.Keys() {
			av, _ := a.Dict.Get(k)
			bv, ok := b.Dict.Get(k)
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindFunc:
		return a.Func == b.Func
	default:
		return false
	}
}

// Repr renders a value the way `write` does (§4.F): human-readable, with
// strings unquoted at the top level but quoted inside list/dict literals.
func (v Value) Repr() string {
	return v.repr(false)
}

func (v Value) repr(nested bool) string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindStr:
		if nested {
			return strconv.Quote(v.Str)
		}
		return v.Str
	case KindList:
		parts := make([]string, len(v.List.Elements))
		for i, e := range v.List.Elements {
			parts[i] = e.repr(true)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindDict:
		parts := make([]string, 0, v.Dict.Len())
		for _, k := range v.Dict.Keys() {
			val, _ := v.Dict.Get(k)
			parts = append(parts, fmt.Sprintf("%q: %s", k, val.repr(true)))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindFunc:
		return fmt.Sprintf("<func %s>", v.Func.Name)
	default:
		return "?"
	}
}
