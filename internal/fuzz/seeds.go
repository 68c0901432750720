package fuzztests

import (
	"os"
	"path/filepath"
	"testing"
)

const maxSeedBytes = 64 << 10

// addCorpusSeeds adds the repository's example modules and a few inline
// fragments to f.
func addCorpusSeeds(f *testing.F) {
	paths, _ := filepath.Glob(filepath.Join("..", "..", "testdata", "*.mf"))
	for _, path := range paths {
		// #nosec G304 -- path comes from the repository testdata glob
		src, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		f.Add(clampSeed(src))
	}
	for _, src := range inlineSeeds {
		f.Add([]byte(src))
	}
}

var inlineSeeds = []string{
	"",
	"declare i32 @f()\n",
	"define void @f() {\nbb0:\n  ret void\n}\n",
	"define i32 @f(i32 %a0) {\nbb0:\n  br bb1\nbb1:\n  ret i32 %a0\n}\n",
	"@g = global i32 0, align 4\n",
	"define i32 @f(i32 %a0) {\nbb0:\n  %v0 = add i32 %a0, 1\n  ret i32 %v0\n}\n" +
		"define i32 @g(i32 %a0) {\nbb0:\n  %v0 = add i32 %a0, 1\n  ret i32 %v0\n}\n",
}

func clampSeed(src []byte) []byte {
	if len(src) <= maxSeedBytes {
		return append([]byte(nil), src...)
	}
	return append([]byte(nil), src[:maxSeedBytes]...)
}
