// cmd/compiler is the muF compiler front end: parses a source program,
// lowers it through internal/compiler, and writes the resulting byte image
// (plus optional symbol-table and AST dumps) to disk, per spec.md §6.
//
// Usage: compiler [-s] [-a] [-d] [-o OUT] PROGRAM
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"muf/internal/bytecode"
	"muf/internal/compiler"
	"muf/internal/parser"
	"muf/internal/reporting"
	"muf/internal/symtab"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run follows the teacher's cmd/sentra style of a flat os.Args scan against
// a small alias table rather than the flag package, generalized from
// Sentra's subcommand dispatch to this CLI's single-mode flag set.
func run(args []string) int {
	var (
		dumpSyms bool
		dumpAST  bool
		debug    bool
		out      string
		program  string
	)

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-s":
			dumpSyms = true
		case "-a":
			dumpAST = true
		case "-d":
			debug = true
		case "-o":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "compiler: -o requires an argument")
				return -1
			}
			i++
			out = args[i]
		default:
			if strings.HasPrefix(args[i], "-") {
				fmt.Fprintf(os.Stderr, "compiler: unknown flag %s\n", args[i])
				return -1
			}
			program = args[i]
		}
	}

	if program == "" {
		fmt.Fprintln(os.Stderr, "usage: compiler [-s] [-a] [-d] [-o OUT] PROGRAM")
		return -1
	}

	if out == "" {
		base := filepath.Base(program)
		out = strings.TrimSuffix(base, filepath.Ext(base)) + ".bin"
	}

	source, err := os.ReadFile(program)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compiler: %v\n", err)
		return -1
	}

	prog, err := parser.Parse(string(source))
	if err != nil {
		fmt.Fprintf(os.Stderr, "compiler: parse error: %v\n", err)
		return -1
	}

	syms := symtab.New()
	gen := compiler.New(syms)
	image, err := gen.Generate(prog.Functions, prog.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compiler: %v\n", err)
		return -1
	}

	if debug {
		fmt.Fprintf(os.Stderr, "compiler: emitted %d bytes (%d debug entries)\n",
			len(image.Code), len(image.Debug))
	}

	if err := writeImage(out, image); err != nil {
		fmt.Fprintf(os.Stderr, "compiler: %v\n", err)
		return -1
	}

	outBase := strings.TrimSuffix(out, filepath.Ext(out))

	if dumpSyms {
		if err := writeDump(outBase+"_syms.txt", func(f *os.File) error {
			return reporting.DumpSymbolTable(syms, len(image.Code), f)
		}); err != nil {
			fmt.Fprintf(os.Stderr, "compiler: %v\n", err)
			return -1
		}
	}

	if dumpAST {
		if err := writeDump(outBase+"_ast.xml", func(f *os.File) error {
			return reporting.DumpAST(prog.Functions, prog.Body, f)
		}); err != nil {
			fmt.Fprintf(os.Stderr, "compiler: %v\n", err)
			return -1
		}
	}

	return 0
}

func writeImage(path string, image *bytecode.Image) error {
	return os.WriteFile(path, image.Code, 0o644)
}

func writeDump(path string, render func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return render(f)
}
