// Package symtab implements the scoped symbol table of spec.md §4.1: a
// mapping from fully qualified names to symbol records, mutated during
// parsing/code generation and consulted by the code generator to lay out
// stack frames.
package symtab

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/exp/maps"

	"muf/internal/ast"
)

// ScopeSeparator mangles a scope path into a fully qualified name, matching
// the original implementation's two-character scope separator.
const ScopeSeparator = "::"

// Symbol is one entry of the table, per spec.md §3 ("Symbol").
type Symbol struct {
	Name         string // local name
	ScopedName   string // scope prefix + separator + local name
	ScopeName    string // parent scope prefix
	Type         ast.Type
	Dims         []int // empty for scalars, one per rank for arrays, length for strings
	Offset       int
	HasOffset    bool
	IsArg        bool
	ArgIndex     int
	IsGlobal     bool
	IsTemp       bool
	IsExternal   bool
	ExternalName string

	// function-only fields
	RetType     ast.Type
	ArgTypes    []ast.Type
	RetDims     []int
	MultiRet    []ast.Type
	EntryAddr   int
	HasEntry    bool
	EndAddr     int
	HasEndAddr  bool
	FrameSize   int

	RefCount int // advisory, incremented on every FindSymbol hit
}

// Table is the scoped symbol table.
type Table struct {
	syms map[string]*Symbol
}

// New returns an empty symbol table.
func New() *Table {
	return &Table{syms: make(map[string]*Symbol)}
}

// QualifiedName joins a scope prefix and a local name the way the original
// mangles scoped identifiers.
func QualifiedName(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + ScopeSeparator + name
}

// AddSymbol inserts a scalar/array symbol. Returns nil if the fully
// qualified name already exists; the duplicate is reported to stderr, never
// silently dropped (spec.md §4.1 "Invariants/failure").
func (t *Table) AddSymbol(scope, name string, ty ast.Type, dims []int) *Symbol {
	qn := QualifiedName(scope, name)
	if _, exists := t.syms[qn]; exists {
		fmt.Fprintf(os.Stderr, "symtab: symbol %q already declared\n", qn)
		return nil
	}
	sym := &Symbol{
		Name:       name,
		ScopedName: qn,
		ScopeName:  scope,
		Type:       ty,
		Dims:       append([]int(nil), dims...),
	}
	t.syms[qn] = sym
	return sym
}

// AddTemp inserts a dummy, non-addressable symbol used by the code
// generator as a type marker for constant pool entries (one per literal
// kind, per the original's m_real_const/m_int_const/... pattern).
func (t *Table) AddTemp(name string, ty ast.Type) *Symbol {
	sym := &Symbol{Name: name, ScopedName: name, Type: ty, IsTemp: true}
	t.syms[name] = sym
	return sym
}

// FuncOpts carries the optional fields of AddFunction.
type FuncOpts struct {
	RetDims      []int
	MultiRetType []ast.Type
	External     string
}

// AddFunction inserts a function symbol with a declared signature.
func (t *Table) AddFunction(scope, name string, retType ast.Type, argTypes []ast.Type, opts *FuncOpts) *Symbol {
	qn := QualifiedName(scope, name)
	if _, exists := t.syms[qn]; exists {
		fmt.Fprintf(os.Stderr, "symtab: function %q already declared\n", qn)
		return nil
	}
	sym := &Symbol{
		Name:       name,
		ScopedName: qn,
		ScopeName:  scope,
		Type:       ast.Function,
		RetType:    retType,
		ArgTypes:   append([]ast.Type(nil), argTypes...),
	}
	if opts != nil {
		sym.RetDims = opts.RetDims
		sym.MultiRet = opts.MultiRetType
		if opts.External != "" {
			sym.IsExternal = true
			sym.ExternalName = opts.External
		}
	}
	t.syms[qn] = sym
	return sym
}

// FindSymbol looks a fully qualified name up, bumping its advisory
// reference count on a hit.
func (t *Table) FindSymbol(qualifiedName string) (*Symbol, bool) {
	sym, ok := t.syms[qualifiedName]
	if ok {
		sym.RefCount++
	}
	return sym, ok
}

// FindSymbolsInScope returns every symbol whose ScopeName equals scope,
// optionally excluding arguments — used by the generator to compute a
// function's frame size.
func (t *Table) FindSymbolsInScope(scope string, excludeArgs bool) []*Symbol {
	var out []*Symbol
	for _, sym := range t.syms {
		if sym.ScopeName != scope {
			continue
		}
		if excludeArgs && sym.IsArg {
			continue
		}
		out = append(out, sym)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScopedName < out[j].ScopedName })
	return out
}

// All returns every symbol in the table, sorted by fully qualified name,
// for deterministic dumping (internal/reporting).
func (t *Table) All() []*Symbol {
	names := maps.Keys(t.syms)
	sort.Strings(names)
	out := make([]*Symbol, 0, len(names))
	for _, n := range names {
		out = append(out, t.syms[n])
	}
	return out
}

// TypeName renders a symbol's primary type, appending [dims] for arrays.
func (s *Symbol) TypeName() string {
	if len(s.Dims) == 0 {
		return s.Type.String()
	}
	parts := make([]string, len(s.Dims))
	for i, d := range s.Dims {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return fmt.Sprintf("%s[%s]", s.Type.String(), strings.Join(parts, ","))
}
