package primitives

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fabrik/pkg/rng"
)

func TestIntWithinDefaultBounds(t *testing.T) {
	r := rng.New(1)
	for i := 0; i < 100; i++ {
		v := Int(r)
		assert.GreaterOrEqual(t, v, int64(0))
		assert.LessOrEqual(t, v, int64(DefaultMax))
	}
}

func TestIntRangeRespectsBounds(t *testing.T) {
	r := rng.New(1)
	for i := 0; i < 100; i++ {
		v := IntRange(r, 10, 20)
		assert.GreaterOrEqual(t, v, int64(10))
		assert.LessOrEqual(t, v, int64(20))
	}
}

func TestRoundPositivePrecision(t *testing.T) {
	assert.Equal(t, 1.23, Round(1.2345, 2))
	assert.Equal(t, 1.0, Round(1.0001, 2))
}

func TestDecimalRangeRespectsBoundsAndPrecision(t *testing.T) {
	r := rng.New(2)
	for i := 0; i < 100; i++ {
		v := DecimalRange(r, 1.0, 2.0, 2)
		assert.GreaterOrEqual(t, v, 1.0)
		assert.LessOrEqual(t, v, 2.0)
		assert.Equal(t, Round(v, 2), v)
	}
}

func TestDateDefaultsToReferenceToday(t *testing.T) {
	r := rng.New(3)
	d := Date(r, time.Time{})
	parsed, err := time.Parse("2006-01-02", d)
	assert.NoError(t, err)
	assert.False(t, parsed.After(referenceToday))
	assert.False(t, parsed.Before(epoch))
}

func TestDateWithExplicitUntil(t *testing.T) {
	r := rng.New(4)
	until := time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC)
	d := Date(r, until)
	parsed, err := time.Parse("2006-01-02", d)
	assert.NoError(t, err)
	assert.False(t, parsed.After(until))
}

func TestDateInYearSpanStaysWithinYear(t *testing.T) {
	r := rng.New(5)
	d := DateInYearSpan(r, 2021, 2021)
	assert.Contains(t, d, "2021-")
}

func TestBoolDeterministic(t *testing.T) {
	a := rng.New(10)
	b := rng.New(10)
	assert.Equal(t, Bool(a), Bool(b))
}

func TestStringHeuristicsPickFamily(t *testing.T) {
	r := rng.New(6)
	company := String(r, "employer_name", "Customer")
	assert.NotEmpty(t, company)

	r2 := rng.New(6)
	first := String(r2, "first_name", "Customer")
	assert.NotEmpty(t, first)
}

func TestStringDeterministicGivenSameSeed(t *testing.T) {
	a := rng.New(77)
	b := rng.New(77)
	assert.Equal(t, String(a, "name", "Widget"), String(b, "name", "Widget"))
}
