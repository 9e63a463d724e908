package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"muf/internal/compiler"
	"muf/internal/parser"
	"muf/internal/symtab"
)

// TestMain registers this binary's run function as a script command named
// "vm", the rogpeppe/go-internal/testscript idiom for black-box CLI testing
// without shelling out to a real build.
func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"vm": func() int { return run(os.Args[1:]) },
	}))
}

// muF source has no dedicated CLI here to compile it (that's cmd/compiler's
// job); scripts instead get a prebuilt byte image dropped into their work
// directory by Setup, built directly against internal/parser and
// internal/compiler the way the two CLIs are wired together in practice.
func buildImage(t *testing.T, src string) []byte {
	t.Helper()
	prog, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parser.Parse: %v", err)
	}
	gen := compiler.New(symtab.New())
	image, err := gen.Generate(prog.Functions, prog.Body)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return image.Code
}

const sumSource = `program sum
	integer :: i
	integer :: s = 0
	do i = 1, 3
		s = s + i
	end do
	print(s)
end program sum`

func TestScripts(t *testing.T) {
	image := buildImage(t, sumSource)

	testscript.Run(t, testscript.Params{
		Dir: "testdata/script",
		Setup: func(env *testscript.Env) error {
			return os.WriteFile(filepath.Join(env.WorkDir, "sum.bin"), image, 0o644)
		},
	})
}
