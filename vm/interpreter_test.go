package vm

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chazu/sprig/bytecode"
	"github.com/chazu/sprig/compiler"
)

type runResult struct {
	value  Value
	stdout string
	interp *Interpreter
	err    error
}

func runSource(t *testing.T, src string, rtOpts []RuntimeOption, opts ...InterpreterOption) runResult {
	t.Helper()
	prog, err := compiler.Compile(src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return runProgram(t, prog, rtOpts, opts...)
}

func runProgram(t *testing.T, prog *bytecode.Program, rtOpts []RuntimeOption, opts ...InterpreterOption) runResult {
	t.Helper()
	var out bytes.Buffer
	rt := NewRuntime(append([]RuntimeOption{WithStdout(&out), WithSeed(1)}, rtOpts...)...)
	in, err := NewInterpreter(prog, rt, opts...)
	if err != nil {
		t.Fatalf("NewInterpreter: %v", err)
	}
	v, err := in.Run()
	return runResult{value: v, stdout: out.String(), interp: in, err: err}
}

// encodings returns prog as compiled and as reloaded from each persisted
// form, so a test can check that behaviour survives serialisation.
func encodings(t *testing.T, prog *bytecode.Program) map[string]*bytecode.Program {
	t.Helper()
	out := map[string]*bytecode.Program{"compiled": prog}
	codecs := map[string]func(*bytecode.Program) ([]byte, error){
		"json": bytecode.MarshalJSON,
		"cbor": bytecode.MarshalCBOR,
	}
	for name, marshal := range codecs {
		data, err := marshal(prog)
		if err != nil {
			t.Fatalf("%s encode: %v", name, err)
		}
		loaded, err := bytecode.Unmarshal(data)
		if err != nil {
			t.Fatalf("%s decode: %v", name, err)
		}
		out[name] = loaded
	}
	return out
}

func mustRun(t *testing.T, src string) runResult {
	t.Helper()
	r := runSource(t, src, nil)
	if r.err != nil {
		t.Fatalf("Run: %v", r.err)
	}
	return r
}

func TestInterpreterPrograms(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Value
	}{
		{
			name: "for loop runs five times",
			src: `int main() {
				int count = 0;
				int i;
				for (i = 0; i < 5; i = i + 1) { count = count + 1; }
				return count * 10 + i;
			}`,
			want: Int32(55),
		},
		{
			name: "if else",
			src: `int pick(int x) { if (x > 3) { return 1; } else { return 2; } }
			int main() { return pick(5) * 10 + pick(1); }`,
			want: Int32(12),
		},
		{
			name: "assignment is an expression",
			src:  `int main() { int a; int b; a = b = 4; return a + b; }`,
			want: Int32(8),
		},
		{
			name: "recursion",
			src: `int fib(int n) { if (n < 2) { return n; } return fib(n - 1) + fib(n - 2); }
			int main() { return fib(15); }`,
			want: Int32(610),
		},
		{
			name: "forward reference",
			src:  `int main() { return later(); } int later() { return 7; }`,
			want: Int32(7),
		},
		{
			name: "linked objects",
			src: `class Node { int value; Node next; }
			int sumList(Node n) {
				int total = 0;
				while (n != null) { total = total + n.value; n = n.next; }
				return total;
			}
			int main() {
				Node head = null;
				for (int i = 1; i <= 4; i = i + 1) {
					Node n = new Node();
					n.value = i;
					n.next = head;
					head = n;
				}
				return sumList(head);
			}`,
			want: Int32(10),
		},
		{
			name: "methods",
			src: `class Counter {
				int n;
				void inc(int by) { this.n = this.n + by; }
				int get() { return this.n; }
			}
			int main() { Counter c = new Counter(); c.inc(3); c.inc(4); return c.get(); }`,
			want: Int32(7),
		},
		{
			name: "arrays",
			src: `int main() {
				int[] xs = new int[5];
				for (int i = 0; i < xs.length; i = i + 1) { xs[i] = i * i; }
				int s = 0;
				for (int i = 0; i < 5; i = i + 1) { s = s + xs[i]; }
				return s;
			}`,
			want: Int32(30),
		},
		{
			name: "short circuit skips the right side",
			src: `int calls = 0;
			bool touch() { calls = calls + 1; return true; }
			int main() {
				bool a = false && touch();
				bool b = true || touch();
				return calls;
			}`,
			want: Int32(0),
		},
		{
			name: "long arithmetic",
			src:  `long main() { long big = 3000000000; return big * 2; }`,
			want: Int64(6000000000),
		},
		{
			name: "int to double promotion",
			src:  `double main() { int a = 1; return a / 4.0; }`,
			want: Double(0.25),
		},
		{
			name: "integer division truncates",
			src:  `int main() { return -7 / 2 * 10 + 7 % 3; }`,
			want: Int32(-29),
		},
		{
			name: "ternary takes the then branch",
			src:  `int main() { int x = 3; return x > 2 ? 10 : 20; }`,
			want: Int32(10),
		},
		{
			name: "ternary takes the else branch",
			src:  `int main() { int x = 1; return x > 2 ? 10 : 20; }`,
			want: Int32(20),
		},
		{
			name: "string length",
			src:  `int main() { string s = "hello"; return s.length + "ab".length; }`,
			want: Int32(7),
		},
		{
			name: "string indexing",
			src:  `char main() { string s = "sprig"; return s[2]; }`,
			want: Char('r'),
		},
		{
			name: "default long local is 64-bit",
			src:  `long main() { long x; x = x + 2147483647; x = x + 1; return x; }`,
			want: Int64(2147483648),
		},
		{
			name: "default long global is 64-bit",
			src: `long total;
			long main() { total = total + 2147483647; total = total + 1; return total; }`,
			want: Int64(2147483648),
		},
		{
			name: "long fields and elements",
			src: `class A { long v; }
			long main() {
				A a = new A();
				long[] xs = new long[1];
				a.v = a.v + 2147483647;
				xs[0] = a.v + 1;
				return xs[0];
			}`,
			want: Int64(2147483648),
		},
		{
			name: "assignment yields the stored value",
			src: `class C { int i; }
			double main() {
				C o = new C();
				int[] a = new int[1];
				int j;
				return (o.i = 2.5) + (a[0] = 2.5) + (j = 2.5);
			}`,
			want: Double(6),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := compiler.Compile(tt.src)
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			for form, p := range encodings(t, prog) {
				r := runProgram(t, p, nil)
				if r.err != nil {
					t.Fatalf("%s: Run: %v", form, r.err)
				}
				if r.value != tt.want {
					t.Errorf("%s: result = %s (%s), want %s (%s)", form, r.value, r.value.Kind, tt.want, tt.want.Kind)
				}
			}
		})
	}
}

func TestInterpreterPrint(t *testing.T) {
	prog, err := compiler.Compile(`void main() {
		string name = "world";
		print("hello " + name + " " + 42);
		print(3.0);
		print('c');
		print(true);
		char c = 'a';
		c = c + 1;
		print("c=" + c);
		print(null);
		long big;
		big = big + 2147483647 + 1;
		print(big);
	}`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	want := "hello world 42\n3.0\nc\ntrue\nc=b\nnull\n2147483648\n"
	for form, p := range encodings(t, prog) {
		r := runProgram(t, p, nil)
		if r.err != nil {
			t.Fatalf("%s: Run: %v", form, r.err)
		}
		if r.stdout != want {
			t.Errorf("%s: stdout = %q, want %q", form, r.stdout, want)
		}
	}
}

func TestInterpreterPrintObject(t *testing.T) {
	r := mustRun(t, `class Point { int x; } void main() { Point p = new Point(); print(p); }`)
	if !strings.HasPrefix(r.stdout, "Point@0x") {
		t.Errorf("stdout = %q, want Point@<address>", r.stdout)
	}
}

func TestInterpreterGlobals(t *testing.T) {
	r := mustRun(t, `int counter = 10;
		string greeting;
		void bump() { counter = counter + 1; }
		int main() { bump(); bump(); return counter; }`)
	if r.value != Int32(12) {
		t.Errorf("result = %s, want 12", r.value)
	}
	if v, ok := r.interp.Global("counter"); !ok || v != Int32(12) {
		t.Errorf("Global(counter) = %s, %t", v, ok)
	}
	if v, _ := r.interp.Global("greeting"); !v.IsNull() {
		t.Errorf("uninitialised string global = %s, want null", v)
	}
}

func TestInterpreterLegacyTernary(t *testing.T) {
	prog, err := compiler.Compile(`int main() { int x = 3; return x > 2 ? 10 : 20; }`,
		compiler.WithLegacyTernary(true))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	r := runProgram(t, prog, nil)
	if r.err != nil {
		t.Fatalf("Run: %v", r.err)
	}
	// The historical lowering leaves the condition on the taken path.
	if r.value != Bool(true) {
		t.Errorf("result = %s (%s), want the condition", r.value, r.value.Kind)
	}
}

func TestInterpreterCall(t *testing.T) {
	prog, err := compiler.Compile(`int add(int a, int b) { return a + b; }`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	in, err := NewInterpreter(prog, NewRuntime())
	if err != nil {
		t.Fatalf("NewInterpreter: %v", err)
	}
	fn, _ := prog.FunctionByName("add")
	v, err := in.Call(fn.ID, Int32(2), Int32(3))
	if err != nil || v != Int32(5) {
		t.Errorf("add(2, 3) = %s, %v", v, err)
	}
	if _, err := in.Call(fn.ID, Int32(2)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("wrong arity: err = %v", err)
	}
	if _, err := in.Call(99); !errors.Is(err, ErrUnknownFunction) {
		t.Errorf("unknown function: err = %v", err)
	}
	if _, err := in.Run(); !errors.Is(err, ErrUnknownFunction) {
		t.Errorf("Run without main: err = %v", err)
	}
}

func TestInterpreterCallRestoresStackWhenEntryFails(t *testing.T) {
	prog, err := compiler.Compile(`int add(int a, int b) { return a + b; }`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	in, err := NewInterpreter(prog, NewRuntime(), WithMaxFrames(0))
	if err != nil {
		t.Fatalf("NewInterpreter: %v", err)
	}
	fn, _ := prog.FunctionByName("add")
	if _, err := in.Call(fn.ID, Int32(2), Int32(3)); !errors.Is(err, ErrStackOverflow) {
		t.Fatalf("err = %v, want ErrStackOverflow", err)
	}
	if len(in.stack) != 0 {
		t.Errorf("arguments left on the stack: %v", in.stack)
	}
}

func TestInterpreterMissingReturn(t *testing.T) {
	r := runSource(t, `int f(bool c) { if (c) { return 1; } }
	int main() { return f(false); }`, nil)
	if !errors.Is(r.err, ErrMissingReturn) {
		t.Fatalf("err = %v, want ErrMissingReturn", r.err)
	}
	if !strings.Contains(r.err.Error(), "f@") {
		t.Errorf("error %q does not name the function", r.err)
	}

	// The taken path returns normally.
	r = mustRun(t, `int f(bool c) { if (c) { return 1; } } int main() { return f(true); }`)
	if r.value != Int32(1) {
		t.Errorf("result = %s, want 1", r.value)
	}
}

func TestInterpreterRuntimeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"division by zero", `int main() { int z = 0; return 1 / z; }`, ErrDivisionByZero},
		{"modulo by zero", `long main() { long z = 0; return 5 % z; }`, ErrDivisionByZero},
		{"null field", `class P { int x; } int main() { P p = null; return p.x; }`, ErrNullReference},
		{"null field write", `class P { int x; } void main() { P p = null; p.x = 1; }`, ErrNullReference},
		{"index past end", `int main() { int[] a = new int[2]; return a[2]; }`, ErrIndexOutOfBounds},
		{"negative index", `void main() { int[] a = new int[2]; a[-1] = 3; }`, ErrIndexOutOfBounds},
		{"negative length", `void main() { int n = -1; int[] a = new int[n]; }`, ErrIndexOutOfBounds},
		{"random bound", `int main() { return random(0); }`, ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := runSource(t, tt.src, nil)
			if !errors.Is(r.err, tt.want) {
				t.Fatalf("err = %v, want %v", r.err, tt.want)
			}
			if !strings.Contains(r.err.Error(), "main@") {
				t.Errorf("error %q does not name the failing instruction", r.err)
			}
		})
	}
}

func TestInterpreterStackOverflow(t *testing.T) {
	r := runSource(t, `int f(int n) { return f(n + 1); } int main() { return f(0); }`, nil, WithMaxFrames(50))
	if !errors.Is(r.err, ErrStackOverflow) {
		t.Errorf("err = %v, want ErrStackOverflow", r.err)
	}
}

func TestInterpreterAutoCollect(t *testing.T) {
	src := `class Box { int v; }
	int main() {
		int total = 0;
		for (int i = 0; i < 1000; i = i + 1) { Box b = new Box(); b.v = i; total = total + b.v; }
		return total;
	}`

	r := runSource(t, src, []RuntimeOption{WithMaxHeap(256)})
	if !errors.Is(r.err, ErrOutOfMemory) {
		t.Fatalf("without auto-collect: err = %v, want ErrOutOfMemory", r.err)
	}

	r = runSource(t, src, []RuntimeOption{WithMaxHeap(256)}, WithAutoCollect(true))
	if r.err != nil {
		t.Fatalf("Run: %v", r.err)
	}
	if r.value != Int32(499500) {
		t.Errorf("total = %s, want 499500", r.value)
	}
	if r.interp.Runtime().GC().Collections() == 0 {
		t.Errorf("no collection ran")
	}
}

func TestInterpreterAutoCollectKeepsStrings(t *testing.T) {
	r := runSource(t, `int main() {
		string s = "";
		for (int i = 0; i < 50; i = i + 1) { s = s + "ab"; }
		print(s);
		return s.length;
	}`, []RuntimeOption{WithMaxHeap(4096)}, WithAutoCollect(true))
	if r.err != nil {
		t.Fatalf("Run: %v", r.err)
	}
	if r.value != Int32(100) {
		t.Errorf("length = %s, want 100", r.value)
	}
	if want := strings.Repeat("ab", 50) + "\n"; r.stdout != want {
		t.Errorf("stdout = %q", r.stdout)
	}
}

func TestInterpreterOutOfMemoryWithLiveData(t *testing.T) {
	r := runSource(t, `class Node { Node next; }
	int main() {
		Node head = null;
		while (true) { Node n = new Node(); n.next = head; head = n; }
		return 0;
	}`, []RuntimeOption{WithMaxHeap(256)}, WithAutoCollect(true))
	if !errors.Is(r.err, ErrOutOfMemory) {
		t.Errorf("err = %v, want ErrOutOfMemory", r.err)
	}
}

func TestInterpreterEnumerateRoots(t *testing.T) {
	prog, err := compiler.Compile(`class P { int x; } P keep;`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	rt := NewRuntime()
	in, err := NewInterpreter(prog, rt)
	if err != nil {
		t.Fatalf("NewInterpreter: %v", err)
	}
	obj, err := rt.AllocateObject(SlotSize, 0)
	if err != nil {
		t.Fatalf("AllocateObject: %v", err)
	}
	in.globals[0] = obj
	in.Push(Int32(7))

	var roots []uint64
	for addr := range in.EnumerateRoots() {
		roots = append(roots, addr)
	}
	if len(roots) != 1 || roots[0] != obj.Address() {
		t.Errorf("roots = %#x, want only the global reference", roots)
	}
}

func TestInterpreterCancellation(t *testing.T) {
	prog, err := compiler.Compile(`void main() { while (true) {} }`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	in, err := NewInterpreter(prog, NewRuntime())
	if err != nil {
		t.Fatalf("NewInterpreter: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := in.RunContext(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNewInterpreterValidates(t *testing.T) {
	prog := bytecode.NewProgram()
	prog.Functions = append(prog.Functions, &bytecode.Function{
		Name:         "broken",
		ClassID:      bytecode.NoID,
		Instructions: []bytecode.Instruction{{Op: bytecode.OpPush, Operands: []int{3}}},
	})
	if _, err := NewInterpreter(prog, NewRuntime()); err == nil {
		t.Errorf("expected a validation error for a dangling constant index")
	}
}
