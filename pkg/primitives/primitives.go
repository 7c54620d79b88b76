// Package primitives generates the five base scalar kinds §4.I
// describes (int, decimal, string, date, boolean). It is split out of
// pkg/fieldgen so that pkg/eval can also reach it — an Identifier that
// names a primitive type used inline as a type reference (e.g. the
// "string" in `string | null`) produces a generated primitive, per
// §4.H — without creating an eval<->fieldgen import cycle.
package primitives

import (
	"fmt"
	"strings"
	"time"

	"fabrik/pkg/rng"
)

// DefaultMax bounds unconstrained int/decimal generation (§4.I).
const DefaultMax = 1000

// DefaultDecimalPrecision is the default rounding precision for
// decimals with no explicit precision override.
const DefaultDecimalPrecision = 2

var epoch = mustParseDate("2020-01-01")

func mustParseDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// Int returns a uniform integer in [0, DefaultMax].
func Int(r *rng.Source) int64 {
	return r.Int(0, DefaultMax)
}

// IntRange returns a uniform integer in [min, max].
func IntRange(r *rng.Source, min, max int64) int64 {
	return r.Int(min, max)
}

// Decimal returns a uniform float in [0, DefaultMax] rounded to
// precision decimal places.
func Decimal(r *rng.Source, precision int) float64 {
	return Round(r.Float64()*DefaultMax, precision)
}

// DecimalRange returns a uniform float in [min, max] rounded to
// precision decimal places.
func DecimalRange(r *rng.Source, min, max float64, precision int) float64 {
	return Round(min+r.Float64()*(max-min), precision)
}

// Round rounds v to precision decimal digits.
func Round(v float64, precision int) float64 {
	scale := 1.0
	for i := 0; i < precision; i++ {
		scale *= 10
	}
	if precision < 0 {
		scale = 1
		for i := 0; i < -precision; i++ {
			scale /= 10
		}
	}
	return float64(int64(v*scale+0.5)) / scale
}

// Bool returns a fair coin flip.
func Bool(r *rng.Source) bool {
	return r.Bool()
}

// today is frozen to a fixed reference date rather than time.Now() so
// generation stays deterministic given only a seed, per §8 property 1.
// Hosts that need wall-clock "today" pass it explicitly via Date's
// until parameter.
var referenceToday = mustParseDate("2026-01-01")

// Date returns a random ISO-8601 date between 2020-01-01 and until
// (inclusive). If until is zero, referenceToday is used.
func Date(r *rng.Source, until time.Time) string {
	if until.IsZero() {
		until = referenceToday
	}
	days := int64(until.Sub(epoch).Hours() / 24)
	if days < 0 {
		days = 0
	}
	offset := r.Int(0, days)
	return epoch.AddDate(0, 0, int(offset)).Format("2006-01-02")
}

// DateInYearSpan picks a uniform date within [minYear, maxYear] (§4.I
// Range-of-date semantics: bounds are interpreted as years).
func DateInYearSpan(r *rng.Source, minYear, maxYear int64) string {
	year := r.Int(minYear, maxYear)
	start := time.Date(int(year), 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(int(year), 12, 31, 0, 0, 0, 0, time.UTC)
	days := int64(end.Sub(start).Hours() / 24)
	offset := r.Int(0, days)
	return start.AddDate(0, 0, int(offset)).Format("2006-01-02")
}

var (
	companySuffixes = []string{"Inc", "LLC", "Group", "Partners", "Holdings", "Co"}
	companyStems    = []string{"Summit", "Horizon", "Vertex", "Meridian", "Anchor", "Beacon", "Cobalt", "Lattice"}
	firstNames      = []string{"Ava", "Noah", "Mia", "Liam", "Zoe", "Ethan", "Ivy", "Leo", "Nora", "Finn"}
	lastNames       = []string{"Reyes", "Kim", "Patel", "Novak", "Santos", "Hale", "Brooks", "Singh", "Moreau", "Diaz"}
	productAdjs     = []string{"Pro", "Max", "Flex", "Lite", "Prime", "Edge"}
	productNouns    = []string{"Widget", "Module", "Kit", "Core", "Hub", "Disk"}
	genericWords    = []string{"lumen", "cobalt", "ember", "fern", "quartz", "drift", "pylon", "ridge"}
)

// String produces a name-heuristic text value, choosing a generator
// family from the field and schema names it is generating for — the
// in-scope core "string" behavior §4.I contrasts with a more elaborate
// faker-like plugin, which stays out of scope (§1 Non-goals) and is
// left to a registered generator instead.
func String(r *rng.Source, fieldName, schemaName string) string {
	field := strings.ToLower(fieldName)
	schema := strings.ToLower(schemaName)
	switch {
	case containsAny(field, "company", "employer", "organization", "vendor"):
		return companyStems[r.Choice(len(companyStems))] + " " + companySuffixes[r.Choice(len(companySuffixes))]
	case containsAny(field, "name") && containsAny(schema, "product", "item", "sku"):
		return productAdjs[r.Choice(len(productAdjs))] + " " + productNouns[r.Choice(len(productNouns))]
	case containsAny(field, "product", "item", "sku"):
		return productAdjs[r.Choice(len(productAdjs))] + " " + productNouns[r.Choice(len(productNouns))]
	case containsAny(field, "first"):
		return firstNames[r.Choice(len(firstNames))]
	case containsAny(field, "last", "surname"):
		return lastNames[r.Choice(len(lastNames))]
	case containsAny(field, "name", "person", "customer", "user", "contact"):
		return firstNames[r.Choice(len(firstNames))] + " " + lastNames[r.Choice(len(lastNames))]
	default:
		return fmt.Sprintf("%s-%d", genericWords[r.Choice(len(genericWords))], r.Int(100, 999))
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
