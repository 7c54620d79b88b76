package gencontext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAppliesDefaults(t *testing.T) {
	ctx := New(42, DefaultOptions(), nil)
	assert.Equal(t, int64(42), ctx.Seed())
	assert.False(t, ctx.Strict())
	assert.NotNil(t, ctx.Plugins)
	assert.NotNil(t, ctx.RNG)
	assert.Equal(t, DefaultRetryLimits, ctx.RetryLimits)
}

func TestResetPreservesPersistentState(t *testing.T) {
	ctx := New(1, DefaultOptions(), nil)
	ctx.Schemas["Order"] = nil
	ctx.Bindings["x"] = nil
	ctx.Collections["orders"] = nil
	ctx.MarkUnique("Order.id", int64(1))

	ctx.Reset()

	assert.Contains(t, ctx.Schemas, "Order")
	assert.Contains(t, ctx.Bindings, "x")
	assert.Empty(t, ctx.Collections)
	assert.Empty(t, ctx.UniqueValues)
}

func TestFullResetClearsPersistentState(t *testing.T) {
	ctx := New(1, DefaultOptions(), nil)
	ctx.Schemas["Order"] = nil
	ctx.Imports["Order"] = "order.fab"

	ctx.FullReset()

	assert.Empty(t, ctx.Schemas)
	assert.Empty(t, ctx.Imports)
}

func TestMarkUniqueRejectsDuplicate(t *testing.T) {
	ctx := New(1, DefaultOptions(), nil)
	key := UniqueKey("Order", "id")
	assert.True(t, ctx.MarkUnique(key, int64(1)))
	assert.False(t, ctx.MarkUnique(key, int64(1)))
	assert.True(t, ctx.MarkUnique(key, int64(2)))
}

func TestRemoveUniqueFreesValue(t *testing.T) {
	ctx := New(1, DefaultOptions(), nil)
	key := UniqueKey("Order", "id")
	ctx.MarkUnique(key, int64(1))
	ctx.RemoveUnique(key, int64(1))
	assert.True(t, ctx.MarkUnique(key, int64(1)))
}

func TestClearUniqueDropsWholeSet(t *testing.T) {
	ctx := New(1, DefaultOptions(), nil)
	key := UniqueKey("Order", "id")
	ctx.MarkUnique(key, int64(1))
	ctx.ClearUnique(key)
	assert.True(t, ctx.MarkUnique(key, int64(1)))
}

func TestNextSequenceStartsAtStartThenIncrements(t *testing.T) {
	ctx := New(1, DefaultOptions(), nil)
	assert.Equal(t, 5, ctx.NextSequence("s", 5))
	assert.Equal(t, 6, ctx.NextSequence("s", 5))
	assert.Equal(t, 7, ctx.NextSequence("s", 5))
}

func TestNextOrderedIndexWrapsCyclically(t *testing.T) {
	ctx := New(1, DefaultOptions(), nil)
	var got []int
	for i := 0; i < 5; i++ {
		got = append(got, ctx.NextOrderedIndex("seq", 3))
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1}, got)
}

func TestDeterministicRNGAcrossContextsWithSameSeed(t *testing.T) {
	a := New(99, DefaultOptions(), nil)
	b := New(99, DefaultOptions(), nil)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.RNG.Float64(), b.RNG.Float64())
	}
}
