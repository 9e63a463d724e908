// Package reporting renders the compiler's two diagnostic dumps: the
// symbol-table listing (`-s`) and the AST XML dump (`-a`), per spec.md §6.
// The fixed-width table and the tag-per-node XML stream both marshal
// in-memory compiler state out to a writer the way the teacher's
// internal/reporting package marshals a SecurityReport to JSON/XML/CSV —
// same shape of concern (structured internal state out to a file), new
// content.
package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"muf/internal/ast"
	"muf/internal/symtab"
)

// DumpSymbolTable writes the fixed-width symbol-table listing spec.md §6
// describes: full name, type (with ext/global/arg N/ret/tmp flags), refs,
// address or address range, dimensions. memSize is the VM memory size the
// table was laid out against, reported alongside in human-readable form.
func DumpSymbolTable(tbl *symtab.Table, memSize int, w io.Writer) error {
	syms := tbl.All()

	fmt.Fprintf(w, "; symbol table (%d entries, memory %s)\n", len(syms), humanize.Bytes(uint64(memSize)))
	fmt.Fprintf(w, "%-32s %-20s %6s %-12s %s\n", "NAME", "TYPE", "REFS", "ADDRESS", "DIMS")
	fmt.Fprintln(w, strings.Repeat("-", 90))

	for _, s := range syms {
		name := s.ScopedName
		typ := s.TypeName()
		flags := symbolFlags(s)
		if flags != "" {
			typ = typ + " [" + flags + "]"
		}
		fmt.Fprintf(w, "%-32s %-20s %6d %-12s %s\n", name, typ, s.RefCount, addressField(s), dimsField(s))
	}
	return nil
}

// symbolFlags renders the flag set spec.md's dump format calls for:
// ext/global/arg N/ret N/tmp. Recursion tracking has no backing field in
// symtab.Symbol (the table never records call-graph information), so the
// "rec" flag from spec.md's description is not emitted — there is nothing
// to report.
func symbolFlags(s *symtab.Symbol) string {
	var flags []string
	if s.IsExternal {
		flags = append(flags, "ext:"+s.ExternalName)
	}
	if s.IsGlobal {
		flags = append(flags, "global")
	}
	if s.IsArg {
		flags = append(flags, fmt.Sprintf("arg%d", s.ArgIndex))
	}
	if s.Type == ast.Function {
		flags = append(flags, "ret:"+s.RetType.String())
		for i, rt := range s.MultiRet {
			flags = append(flags, fmt.Sprintf("ret%d:%s", i+1, rt.String()))
		}
	}
	if s.IsTemp {
		flags = append(flags, "tmp")
	}
	return strings.Join(flags, ",")
}

// addressField renders a symbol's storage location: a function's
// entry-to-end byte range, a variable's single offset, or a dash when
// neither has been assigned yet (declared but not laid out).
func addressField(s *symtab.Symbol) string {
	if s.Type == ast.Function {
		if s.HasEntry && s.HasEndAddr {
			return fmt.Sprintf("%d-%d", s.EntryAddr, s.EndAddr)
		}
		if s.HasEntry {
			return fmt.Sprintf("%d-?", s.EntryAddr)
		}
		return "-"
	}
	if s.HasOffset {
		return fmt.Sprintf("%d", s.Offset)
	}
	return "-"
}

func dimsField(s *symtab.Symbol) string {
	if len(s.Dims) == 0 {
		return "-"
	}
	parts := make([]string, len(s.Dims))
	for i, d := range s.Dims {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return strings.Join(parts, "x")
}
