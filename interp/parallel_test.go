package interp_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scostello/monty-go/compiler/codegen"
	"github.com/scostello/monty-go/interp"
	"github.com/scostello/monty-go/registry"
	"github.com/scostello/monty-go/values"
)

// One Program, many concurrent interpreters: the contract of spec.md §5 is
// that executions share nothing but the read-only Program, so N parallel
// CPU-bound runs neither contend nor interfere. Wallclock scaling is a
// property of the host machine; what the suite pins down is isolation and
// correctness under -race.
func TestParallelExecutionsShareOneProgram(t *testing.T) {
	src := `
def work(seed):
    acc = seed
    for i in range(2000):
        acc = (acc * 31 + i) % 1000003
    return acc

work(n)
`
	prog, err := codegen.Compile(src, codegen.Options{ScriptName: "work.py", Inputs: []string{"n"}})
	require.NoError(t, err)
	reg := testBuiltins()

	runOne := func(seed int64) (int64, error) {
		in := interp.New(prog, reg, registry.NewDataclassRegistry(), registry.NewNamedTupleRegistry(), interp.Limits{}, nil)
		out, err := in.RunSync(map[string]values.Value{"n": values.Int(seed)})
		if err != nil {
			return 0, err
		}
		return out.Int(), nil
	}

	const workers = 8
	want := make([]int64, workers)
	for w := 0; w < workers; w++ {
		ref, err := runOne(int64(w))
		require.NoError(t, err)
		want[w] = ref
	}

	got := make([]int64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			got[w], errs[w] = runOne(int64(w))
		}(w)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		require.NoError(t, errs[w])
		assert.Equal(t, want[w], got[w])
	}
}
