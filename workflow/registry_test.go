package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopStep() StepExecutor {
	return StepFunc(func(ctx context.Context, input Projection) (PartialUpdate, error) {
		return nil, nil
	})
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register("market_analyst", noopStep()))

	step, ok := r.Get("market_analyst")
	assert.True(t, ok)
	assert.NotNil(t, step)

	_, ok = r.Get("unknown")
	assert.False(t, ok)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register("trader", noopStep()))

	err := r.Register("trader", noopStep())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_RejectsEmptyNameAndNilStep(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	assert.Error(t, r.Register("", noopStep()))
	assert.Error(t, r.Register("trader", nil))
}

func TestRegistry_MustRegisterPanics(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.MustRegister("trader", noopStep())

	assert.Panics(t, func() {
		r.MustRegister("trader", noopStep())
	})
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.MustRegister("bull", noopStep())
	r.MustRegister("bear", noopStep())

	assert.ElementsMatch(t, []string{"bull", "bear"}, r.Names())
}
