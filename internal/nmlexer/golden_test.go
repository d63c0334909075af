package nmlexer_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/novelmind/novelmind/internal/filetest"
	"github.com/novelmind/novelmind/internal/nmlexer"
)

var updateGolden = false

// TestTokenizeGolden runs every .nms file under testdata/golden through the
// lexer and diffs a formatted token dump against its .want file, in the
// teacher's golden-file style (adapted from internal/filetest, used the
// same way the teacher's lang/scanner tests drive it).
func TestTokenizeGolden(t *testing.T) {
	dir := "testdata/golden"
	for _, fi := range filetest.SourceFiles(t, dir, ".nms") {
		fi := fi
		t.Run(fi.Name(), func(t *testing.T) {
			src, err := os.ReadFile(filepath.Join(dir, fi.Name()))
			if err != nil {
				t.Fatal(err)
			}
			toks, err := nmlexer.Tokenize(fi.Name(), src)
			if err != nil {
				t.Fatalf("tokenize: %v", err)
			}
			var out string
			for _, tok := range toks {
				out += fmt.Sprintf("%-12s %q\n", tok.Type, tok.Lexeme)
			}
			filetest.DiffOutput(t, fi, out, dir, &updateGolden)
		})
	}
}
