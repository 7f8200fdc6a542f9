package resolver

import (
	"testing"

	"github.com/bitey-pm/bitey/pkg/source"
	"github.com/bitey-pm/bitey/pkg/source/sourcetest"
	"github.com/stretchr/testify/assert"
)

func resolved(name string, deps ...string) *source.Resolved {
	return &source.Resolved{Name: name, Manifest: sourcetest.Manifest(name, "1", deps...)}
}

func TestPlanAdd(t *testing.T) {
	p := NewPlan()
	assert.True(t, p.Add(resolved("lib"), false))
	assert.True(t, p.Add(resolved("app", "lib"), true))
	assert.False(t, p.Add(resolved("lib"), true))

	assert.Equal(t, []string{"lib", "app"}, p.Names())
	assert.Equal(t, 2, p.Len())

	lib, ok := p.Get("lib")
	assert.True(t, ok)
	assert.True(t, lib.Requested, "re-adding as requested marks the entry")

	_, ok = p.Get("missing")
	assert.False(t, ok)
}

func TestPlanMerge(t *testing.T) {
	first := NewPlan()
	first.Add(resolved("base"), false)
	first.Add(resolved("app", "base"), true)

	second := NewPlan()
	second.Add(resolved("base"), false)
	second.Add(resolved("util", "base"), false)
	second.Add(resolved("tool", "util"), true)

	first.Merge(second)
	assert.Equal(t, []string{"base", "app", "util", "tool"}, first.Names())
	assert.Equal(t, []string{"app", "util"}, first.Dependents("base"))
}

func TestPlanNil(t *testing.T) {
	var p *Plan
	assert.Zero(t, p.Len())
	assert.Nil(t, p.Names())
	assert.Nil(t, p.Entries())
}
