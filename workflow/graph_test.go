package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoStepRegistry(t *testing.T, names ...string) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, n := range names {
		r.MustRegister(n, noopStep())
	}
	return r
}

func TestGraph_Validate(t *testing.T) {
	t.Parallel()

	reg := twoStepRegistry(t, "first", "second")

	g := NewGraph()
	g.MustAddNode(&Node{Name: "a", Kind: NodeKindStep, Step: "first", Next: "b"})
	g.MustAddNode(&Node{Name: "b", Kind: NodeKindStep, Step: "second"})
	g.SetEntry("a")

	require.NoError(t, g.Validate(reg))
}

func TestGraph_ValidateMissingEntry(t *testing.T) {
	t.Parallel()

	reg := twoStepRegistry(t, "first")
	g := NewGraph()
	g.MustAddNode(&Node{Name: "a", Kind: NodeKindStep, Step: "first"})

	err := g.Validate(reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no entry node")

	g.SetEntry("missing")
	err = g.Validate(reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in graph")
}

func TestGraph_ValidateUnregisteredStep(t *testing.T) {
	t.Parallel()

	reg := twoStepRegistry(t, "first")
	g := NewGraph()
	g.MustAddNode(&Node{Name: "a", Kind: NodeKindStep, Step: "ghost"})
	g.SetEntry("a")

	err := g.Validate(reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestGraph_ValidateDanglingEdge(t *testing.T) {
	t.Parallel()

	reg := twoStepRegistry(t, "first")
	g := NewGraph()
	g.MustAddNode(&Node{Name: "a", Kind: NodeKindStep, Step: "first", Next: "nowhere"})
	g.SetEntry("a")

	err := g.Validate(reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `target "nowhere"`)
}

func TestGraph_ValidateEdgeExclusivity(t *testing.T) {
	t.Parallel()

	reg := twoStepRegistry(t, "first", "second")
	g := NewGraph()
	g.MustAddNode(&Node{Name: "b", Kind: NodeKindStep, Step: "second"})
	g.MustAddNode(&Node{
		Name: "a", Kind: NodeKindStep, Step: "first",
		Next:  "b",
		Route: func(state State) (string, error) { return "b", nil },
	})
	g.SetEntry("a")

	err := g.Validate(reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both")
}

func TestGraph_ValidateFanOut(t *testing.T) {
	t.Parallel()

	reg := twoStepRegistry(t, "left", "right", "join")

	build := func(group *FanOutGroup) *Graph {
		g := NewGraph()
		g.MustAddNode(&Node{Name: "fan", Kind: NodeKindFanOut, Group: group})
		g.SetEntry("fan")
		return g
	}

	ok := build(&FanOutGroup{
		Branches: []Branch{{Name: "l", Step: "left"}, {Name: "r", Step: "right"}},
		Join:     "join",
	})
	require.NoError(t, ok.Validate(reg))

	noBranches := build(&FanOutGroup{Join: "join"})
	assert.Error(t, noBranches.Validate(reg))

	dupBranch := build(&FanOutGroup{
		Branches: []Branch{{Name: "l", Step: "left"}, {Name: "l", Step: "right"}},
		Join:     "join",
	})
	assert.Error(t, dupBranch.Validate(reg))

	noJoin := build(&FanOutGroup{
		Branches: []Branch{{Name: "l", Step: "left"}},
	})
	assert.Error(t, noJoin.Validate(reg))

	badJoin := build(&FanOutGroup{
		Branches: []Branch{{Name: "l", Step: "left"}},
		Join:     "ghost",
	})
	assert.Error(t, badJoin.Validate(reg))
}

func TestGraph_AddNodeRejectsDuplicates(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	require.NoError(t, g.AddNode(&Node{Name: "a", Kind: NodeKindStep, Step: "s"}))
	assert.Error(t, g.AddNode(&Node{Name: "a", Kind: NodeKindStep, Step: "s"}))
	assert.Error(t, g.AddNode(nil))
	assert.Error(t, g.AddNode(&Node{Kind: NodeKindStep}))
}
