package compiler

import (
	"testing"
)

// ---------------------------------------------------------------------------
// FuzzLexer: ensure the lexer never panics on arbitrary input.
// ---------------------------------------------------------------------------

var fuzzSeeds = []string{
	`( ) [ ] { } , ; . ? : + - * / % ! = == != < <= > >= && ||`,
	`42`, `0`, `3.14`, `.5`, `1e10`, `1.5e-3`, `2.0E+5`, `1e+`,
	`"hello"`, `""`, `"a\nb"`, `"unterminated`, `"bad \q"`,
	`'a'`, `'\n'`, `'ab'`, `''`,
	`class if else while for return new this null true false`,
	"// comment\nfoo", `/* block */ bar`, `/* open`,
	`int x = 1;`,
	`void main() { for (int i = 0; i < 5; i = i + 1) { print("" + i); } }`,
	`class P { int x; P next; int get() { return this.x; } }`,
	`int f(int[] a) { return a.length > 0 ? a[0] : -1; }`,
	`void f() { int[][] g = new int[][3]; g[0] = new int[2]; }`,
	`a & b | c # d`,
}

func FuzzLexer(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, input string) {
		tokens := Tokenize(input)
		if len(tokens) == 0 {
			t.Fatal("Tokenize returned no tokens")
		}
		last := tokens[len(tokens)-1].Type
		if last != TokenEOF && last != TokenError {
			t.Fatalf("last token = %v, want EOF or ERROR", last)
		}
	})
}

// ---------------------------------------------------------------------------
// FuzzCompile: parsing and generation report errors instead of panicking.
// ---------------------------------------------------------------------------

func FuzzCompile(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, input string) {
		prog, err := Compile(input)
		if err != nil && prog != nil {
			t.Fatal("program returned alongside an error")
		}
		if parsed, err := Parse(input); err == nil {
			Analyze(parsed)
		}
	})
}
