package foundation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOption(t *testing.T) {
	some := Some(42)
	none := None[int]()

	assert.True(t, some.IsSome())
	assert.True(t, none.IsNone())

	v, ok := some.Get()
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	assert.Equal(t, 7, none.UnwrapOr(7))
	assert.Equal(t, 9, none.UnwrapOrElse(func() int { return 9 }))
	assert.Equal(t, "Some(42)", some.String())
	assert.Equal(t, "None", none.String())

	doubled := MapOption(some, func(i int) string { return "x" })
	assert.Equal(t, "x", doubled.UnwrapOr(""))
	assert.True(t, MapOption(none, func(i int) string { return "x" }).IsNone())
}

func TestFirstSomeStopsAtFirstMatch(t *testing.T) {
	var calls []string
	step := func(name string, hit bool) func() Option[string] {
		return func() Option[string] {
			calls = append(calls, name)
			if hit {
				return Some(name)
			}
			return None[string]()
		}
	}

	got := FirstSome(step("a", false), nil, step("b", true), step("c", true))
	assert.Equal(t, "b", got.UnwrapOr(""))
	assert.Equal(t, []string{"a", "b"}, calls)

	assert.True(t, FirstSome[string]().IsNone())
}
