package compiler_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/kr/pretty"
	"golang.org/x/tools/txtar"
)

// TestGoldenPrograms runs every testdata/golden/*.txtar fixture end to end
// (parse, generate, execute) and checks its printed output against the
// archive's recorded "output.txt" file, one fixture per muF language feature
// rather than one assertion per opcode.
func TestGoldenPrograms(t *testing.T) {
	matches, err := filepath.Glob("testdata/golden/*.txtar")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("no golden fixtures found under testdata/golden")
	}

	for _, path := range matches {
		path := path
		t.Run(filepath.Base(path), func(t *testing.T) {
			archive, err := txtar.ParseFile(path)
			if err != nil {
				t.Fatalf("txtar.ParseFile: %v", err)
			}

			var program, wantOutput string
			var haveProgram, haveOutput bool
			for _, f := range archive.Files {
				switch f.Name {
				case "program.mu":
					program, haveProgram = string(f.Data), true
				case "output.txt":
					wantOutput, haveOutput = string(f.Data), true
				}
			}
			if !haveProgram || !haveOutput {
				t.Fatalf("%s: expected both program.mu and output.txt sections", path)
			}

			got := compileAndRun(t, program)
			want := strings.Split(strings.TrimRight(wantOutput, "\n"), "\n")
			if diff := pretty.Diff(got, want); len(diff) > 0 {
				t.Fatalf("output mismatch for %s:\n%s", path, strings.Join(diff, "\n"))
			}
		})
	}
}
