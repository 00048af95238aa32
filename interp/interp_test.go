package interp_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scostello/monty-go/builtins"
	"github.com/scostello/monty-go/compiler/codegen"
	"github.com/scostello/monty-go/interp"
	"github.com/scostello/monty-go/registry"
	"github.com/scostello/monty-go/values"
)

func testBuiltins() *registry.Builtins {
	reg := registry.NewBuiltins()
	builtins.Register(reg)
	builtins.RegisterMethods(reg)
	return reg
}

func newInterp(t *testing.T, src string, limits interp.Limits) *interp.Interpreter {
	t.Helper()
	prog, err := codegen.Compile(src, codegen.Options{ScriptName: "test.py"})
	require.NoError(t, err)
	return interp.New(prog, testBuiltins(), registry.NewDataclassRegistry(), registry.NewNamedTupleRegistry(), limits, nil)
}

// runRepr compiles and runs src to completion and returns the repr of the
// final expression's value.
func runRepr(t *testing.T, src string) string {
	t.Helper()
	in := newInterp(t, src, interp.Limits{})
	out, err := in.RunSync(nil)
	require.NoError(t, err)
	return values.FormatRepr(in.Heap, out)
}

func runErr(t *testing.T, src string) error {
	t.Helper()
	in := newInterp(t, src, interp.Limits{})
	_, err := in.RunSync(nil)
	require.Error(t, err)
	return err
}

func TestArithmetic(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"1 + 2 * 3", "7"},
		{"(1 + 2) * 3", "9"},
		{"7 // 2", "3"},
		{"-7 // 2", "-4"},
		{"7 % 3", "1"},
		{"7 % -3", "-2"},
		{"-7 % 3", "2"},
		{"1 / 2", "0.5"},
		{"2 ** 10", "1024"},
		{"2 ** 100", "1267650600228229401496703205376"},
		{"5 | 2", "7"},
		{"6 & 3", "2"},
		{"5 ^ 1", "4"},
		{"1 << 4", "16"},
		{"256 >> 4", "16"},
		{"~5", "-6"},
		{"-(3)", "-3"},
		{"1.5 + 2.5", "4.0"},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			assert.Equal(t, tc.want, runRepr(t, tc.src))
		})
	}
}

func TestComparisonsAndBool(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"1 == 1.0", "True"},
		{"True == 1", "True"},
		{"1 == '1'", "False"},
		{"2 < 3 < 4", "True"},
		{"2 < 3 < 3", "False"},
		{"'a' in 'cab'", "True"},
		{"3 in [1, 2, 3]", "True"},
		{"4 not in (1, 2, 3)", "True"},
		{"None is None", "True"},
		{"[] is not None", "True"},
		{"True and 'yes'", "'yes'"},
		{"False or 42", "42"},
		{"not []", "True"},
		{"0 or '' or None", "None"},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			assert.Equal(t, tc.want, runRepr(t, tc.src))
		})
	}
}

func TestInputsSeeding(t *testing.T) {
	prog, err := codegen.Compile("x + y", codegen.Options{ScriptName: "add.py", Inputs: []string{"x", "y"}})
	require.NoError(t, err)
	reg := testBuiltins()

	run := func(x, y int64) values.Value {
		in := interp.New(prog, reg, registry.NewDataclassRegistry(), registry.NewNamedTupleRegistry(), interp.Limits{}, nil)
		out, err := in.RunSync(map[string]values.Value{"x": values.Int(x), "y": values.Int(y)})
		require.NoError(t, err)
		return out
	}
	assert.Equal(t, int64(30), run(10, 20).Int())
	assert.Equal(t, int64(300), run(100, 200).Int())
}

func TestInputValidation(t *testing.T) {
	prog, err := codegen.Compile("x", codegen.Options{Inputs: []string{"x"}})
	require.NoError(t, err)
	reg := testBuiltins()

	in := interp.New(prog, reg, registry.NewDataclassRegistry(), registry.NewNamedTupleRegistry(), interp.Limits{}, nil)
	_, err = in.Start(nil)
	var invalid *interp.InvalidArgument
	require.ErrorAs(t, err, &invalid)

	in = interp.New(prog, reg, registry.NewDataclassRegistry(), registry.NewNamedTupleRegistry(), interp.Limits{}, nil)
	_, err = in.Start(map[string]values.Value{"x": values.Int(1), "z": values.Int(2)})
	require.ErrorAs(t, err, &invalid)
}

func TestControlFlow(t *testing.T) {
	src := `
total = 0
for i in range(10):
    if i % 2 == 0:
        continue
    if i > 7:
        break
    total = total + i
while total < 20:
    total = total + 1
total
`
	assert.Equal(t, "20", runRepr(t, src))
}

func TestFunctionsAndClosures(t *testing.T) {
	src := `
def make_adder(n):
    def add(x):
        return x + n
    return add

add5 = make_adder(5)
add5(37)
`
	assert.Equal(t, "42", runRepr(t, src))

	src = `
def greet(name, prefix="hello"):
    return prefix + " " + name

greet("world") + "/" + greet("monty", prefix="hi")
`
	assert.Equal(t, "'hello world/hi monty'", runRepr(t, src))

	src = `
def fib(n):
    if n < 2:
        return n
    return fib(n - 1) + fib(n - 2)

fib(12)
`
	assert.Equal(t, "144", runRepr(t, src))

	assert.Equal(t, "9", runRepr(t, "f = lambda x: x * x\nf(3)"))
}

func TestStringsAndFStrings(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{`"ab" + "cd"`, "'abcd'"},
		{`"ab" * 3`, "'ababab'"},
		{`"hello"[1]`, "'e'"},
		{`"hello"[1:3]`, "'el'"},
		{`"hello"[::-1]`, "'olleh'"},
		{`"a,b,c".split(",")`, "['a', 'b', 'c']"},
		{`"-".join(["x", "y"])`, "'x-y'"},
		{`"  pad  ".strip()`, "'pad'"},
		{`"Hello".upper()`, "'HELLO'"},
		{`"Hello".startswith("He")`, "True"},
		{`"na" * 2 + " batman"`, "'nana batman'"},
		{`x = 6
f"score: {x * 7}"`, "'score: 42'"},
		{`name = "monty"
f"hi {name}!"`, "'hi monty!'"},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, runRepr(t, tc.src))
		})
	}
}

func TestCollections(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"list literal", "[1, 2] + [3]", "[1, 2, 3]"},
		{"list methods", `
xs = [3, 1, 2]
xs.sort()
xs.append(4)
xs
`, "[1, 2, 3, 4]"},
		{"dict", `
d = {"a": 1}
d["b"] = 2
d.get("missing", 99) + d["a"] + d["b"]
`, "102"},
		{"dict iteration order", `
d = {}
d["z"] = 1
d["a"] = 2
d["m"] = 3
list(d)
`, "['z', 'a', 'm']"},
		{"tuple unpack", "a, b = 1, 2\nb, a = a, b\n(a, b)", "(2, 1)"},
		{"nested unpack in for", `
pairs = [(1, "a"), (2, "b")]
out = []
for n, s in pairs:
    out.append(s * n)
out
`, "['a', 'bb']"},
		{"list comprehension", "[x * x for x in range(5) if x % 2 == 1]", "[1, 9]"},
		{"dict comprehension", "{k: k * 2 for k in [1, 2]}", "{1: 2, 2: 4}"},
		{"set ops", `
s = {1, 2, 3}
s.add(4)
sorted(s.intersection({2, 3, 9}))
`, "[2, 3]"},
		{"enumerate/zip", `
out = []
for i, (a, b) in enumerate(zip("xy", [10, 20])):
    out.append(i + b)
out
`, "[10, 21]"},
		{"sum/min/max", "(sum([1, 2, 3]), min(4, 2), max([7, 9]))", "(6, 2, 9)"},
		{"slicing", "[0, 1, 2, 3, 4][1:4:2]", "[1, 3]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, runRepr(t, tc.src))
		})
	}
}

func TestClasses(t *testing.T) {
	src := `
class Counter:
    def __init__(self, start):
        self.count = start

    def bump(self, by):
        self.count = self.count + by
        return self.count

c = Counter(10)
c.bump(5)
c.bump(1)
`
	assert.Equal(t, "16", runRepr(t, src))
}

func TestDataclass(t *testing.T) {
	src := `
from dataclasses import dataclass

@dataclass
class Point:
    x: int
    y: int

p = Point(3, 4)
p.x + p.y
`
	assert.Equal(t, "7", runRepr(t, src))
}

func TestFrozenDataclassWrite(t *testing.T) {
	src := `
from dataclasses import dataclass

@dataclass(frozen=True)
class Point:
    x: int
    y: int

p = Point(1, 2)
p.x = 10
`
	err := runErr(t, src)
	var re *interp.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "FrozenInstanceError", re.Kind)
	assert.Equal(t, "cannot assign to field 'x'", re.Message)
}

func TestExceptions(t *testing.T) {
	src := `
def risky(n):
    if n == 0:
        raise ValueError("zero is right out")
    return 10 // n

out = []
for n in [5, 0, 2]:
    try:
        out.append(risky(n))
    except ValueError:
        out.append(-1)
out
`
	assert.Equal(t, "[2, -1, 5]", runRepr(t, src))
}

func TestExceptionMatchingByInheritance(t *testing.T) {
	src := `
try:
    {}["missing"]
except LookupError:
    result = "caught"
result
`
	assert.Equal(t, "'caught'", runRepr(t, src))
}

func TestExceptHandlerReraises(t *testing.T) {
	src := `
try:
    try:
        raise KeyError("k")
    except ValueError:
        result = "wrong"
except KeyError:
    result = "outer"
result
`
	assert.Equal(t, "'outer'", runRepr(t, src))
}

func TestFinallyRunsOnBothPaths(t *testing.T) {
	src := `
log = []
try:
    log.append("body")
finally:
    log.append("finally")
try:
    try:
        raise ValueError("x")
    finally:
        log.append("cleanup")
except ValueError:
    log.append("caught")
log
`
	assert.Equal(t, "['body', 'finally', 'cleanup', 'caught']", runRepr(t, src))
}

func TestUncaughtExceptionEnvelope(t *testing.T) {
	err := runErr(t, "def f():\n    return 1 // 0\nf()")
	var re *interp.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "ZeroDivisionError", re.Kind)
	assert.NotEmpty(t, re.Traceback)
	tb := re.FormattedTraceback()
	assert.True(t, strings.HasPrefix(tb, "Traceback (most recent call last):"))
	assert.Contains(t, tb, "ZeroDivisionError")
}

func TestZeroDivision(t *testing.T) {
	err := runErr(t, "1 // 0")
	var re *interp.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "ZeroDivisionError", re.Kind)
}

func TestAssert(t *testing.T) {
	assert.Equal(t, "'ok'", runRepr(t, "assert 1 + 1 == 2\n'ok'"))
	err := runErr(t, `assert False, "wanted truth"`)
	var re *interp.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "AssertionError", re.Kind)
	assert.Equal(t, "wanted truth", re.Message)
}

func TestImportAllowlist(t *testing.T) {
	err := runErr(t, "import socket")
	var re *interp.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "ModuleNotFoundError", re.Kind)
	assert.Equal(t, "No module named 'socket'", re.Message)
}

func TestTypeCheckingGuard(t *testing.T) {
	src := `
from typing import TYPE_CHECKING
if TYPE_CHECKING:
    import this_module_does_not_exist
"guard held"
`
	assert.Equal(t, "'guard held'", runRepr(t, src))
}

func TestOSCallUnmediated(t *testing.T) {
	src := `
from pathlib import Path
Path("/f").exists()
`
	err := runErr(t, src)
	var re *interp.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "NotImplementedError", re.Kind)
	assert.Equal(t, "OS function 'Path.exists' not implemented", re.Message)
}

func TestPurePathSurface(t *testing.T) {
	src := `
from pathlib import Path
p = Path("/srv/data/report.txt")
(p.name, p.suffix, p.parent.as_posix(), p.with_suffix(".csv").name)
`
	assert.Equal(t, "('report.txt', '.txt', '/srv/data', 'report.csv')", runRepr(t, src))
}

func TestRunSyncRejectsExternalPrograms(t *testing.T) {
	prog, err := codegen.Compile("a()", codegen.Options{Externals: []string{"a"}})
	require.NoError(t, err)
	in := interp.New(prog, testBuiltins(), registry.NewDataclassRegistry(), registry.NewNamedTupleRegistry(), interp.Limits{}, nil)
	_, err = in.RunSync(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start/resume")
}

func TestAllocationLimit(t *testing.T) {
	src := `
xs = []
for i in range(2000):
    xs.append([i])
xs
`
	in := newInterp(t, src, interp.Limits{MaxAllocations: 1000})
	_, err := in.RunSync(nil)
	require.Error(t, err)
	var re *interp.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "MemoryError", re.Kind)
}

func TestHeapByteLimit(t *testing.T) {
	src := `
blob = "x"
while True:
    blob = blob + blob
`
	in := newInterp(t, src, interp.Limits{MaxHeapBytes: 1 << 16})
	_, err := in.RunSync(nil)
	require.Error(t, err)
	var re *interp.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "MemoryError", re.Kind)
}

func TestSweepReclaimsGarbage(t *testing.T) {
	// A byte budget a quarter of the one TestHeapByteLimit exhausts is fine
	// when the old generations become garbage and the periodic sweep runs.
	src := `
total = 0
for i in range(500):
    total = total + len([i, i, i])
total
`
	in := newInterp(t, src, interp.Limits{MaxHeapBytes: 1 << 14, GCInterval: 64})
	out, err := in.RunSync(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), out.Int())
}

func TestDeadlineUncatchable(t *testing.T) {
	src := `
while True:
    try:
        x = 1
    except Exception:
        x = 2
`
	in := newInterp(t, src, interp.Limits{
		Deadline:      time.Now().Add(20 * time.Millisecond),
		CheckInterval: 64,
	})
	_, err := in.RunSync(nil)
	require.Error(t, err)
	assert.IsType(t, builtins.DeadlineExceeded{}, err)
}

func TestRecursionLimit(t *testing.T) {
	src := "def f():\n    return f()\nf()"
	in := newInterp(t, src, interp.Limits{MaxRecursionDepth: 50})
	_, err := in.RunSync(nil)
	require.Error(t, err)
	var re *interp.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "RecursionError", re.Kind)
}

func TestNoCrossRunStateLeak(t *testing.T) {
	prog, err := codegen.Compile("xs = []\nxs.append(1)\nlen(xs)", codegen.Options{})
	require.NoError(t, err)
	reg := testBuiltins()
	for i := 0; i < 3; i++ {
		in := interp.New(prog, reg, registry.NewDataclassRegistry(), registry.NewNamedTupleRegistry(), interp.Limits{}, nil)
		out, err := in.RunSync(nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1), out.Int())
	}
}

func TestPrintSink(t *testing.T) {
	prog, err := codegen.Compile(`print("a", 1 + 1)`, codegen.Options{})
	require.NoError(t, err)
	var lines []string
	in := interp.New(prog, testBuiltins(), registry.NewDataclassRegistry(), registry.NewNamedTupleRegistry(), interp.Limits{}, func(s string) { lines = append(lines, s) })
	_, err = in.RunSync(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a 2"}, lines)
}

func TestNamedTuple(t *testing.T) {
	src := `
from collections import namedtuple
Point = namedtuple("Point", ["x", "y"])
p = Point(1, y=2)
(p.x, p.y, p[0], len(p))
`
	assert.Equal(t, "(1, 2, 1, 2)", runRepr(t, src))
}

func TestNamedTupleMissingAttr(t *testing.T) {
	src := `
from collections import namedtuple
Point = namedtuple("Point", ["x", "y"])
Point(1, 2).z
`
	err := runErr(t, src)
	var re *interp.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "AttributeError", re.Kind)
	assert.Contains(t, re.Message, "'Point' object has no attribute 'z'")
}
