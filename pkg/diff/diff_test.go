package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/contentvc/pkg/payload"
)

func TestComputeAddedRemovedModified(t *testing.T) {
	from := payload.Payload{
		"title": payload.String("v1"),
		"body":  payload.String("old"),
		"cta":   payload.String("Buy"),
	}
	to := payload.Payload{
		"title":  payload.String("v2"),
		"body":   payload.String("old"),
		"banner": payload.String("new"),
	}

	cs := Compute(from, to)
	require.True(t, cs.HasChanges())
	assert.Equal(t, 3, cs.Len())

	assert.Equal(t, map[string]payload.Value{"banner": payload.String("new")}, cs.Added())
	assert.Equal(t, map[string]payload.Value{"cta": payload.String("Buy")}, cs.Removed())

	mod := cs.Modified()
	require.Contains(t, mod, "title")
	assert.True(t, mod["title"].Old.Equal(payload.String("v1")))
	assert.True(t, mod["title"].New.Equal(payload.String("v2")))

	var paths []string
	for _, p := range cs.Paths() {
		paths = append(paths, p.String())
	}
	assert.Equal(t, []string{"banner", "cta", "title"}, paths, "stable key order")
}

func TestComputeIdenticalIsEmpty(t *testing.T) {
	p := payload.Payload{"title": payload.String("same"), "n": payload.Number(1)}
	cs := Compute(p, p.Clone())
	assert.False(t, cs.HasChanges())
	assert.Empty(t, cs.Changes())
}

func TestComputeDescendsNestedMaps(t *testing.T) {
	from := payload.Payload{"seo": payload.Map(payload.Payload{
		"slug":  payload.String("a"),
		"title": payload.String("t"),
	})}
	to := payload.Payload{"seo": payload.Map(payload.Payload{
		"slug":  payload.String("b"),
		"title": payload.String("t"),
	})}

	cs := Compute(from, to)
	require.Equal(t, 1, cs.Len())
	ch := cs.Changes()[0]
	assert.Equal(t, payload.Path{"seo", "slug"}, ch.Path)
	assert.Equal(t, OpModified, ch.Op)
}

func TestComputeKindChangeIsAtomic(t *testing.T) {
	from := payload.Payload{"seo": payload.Map(payload.Payload{"slug": payload.String("a")})}
	to := payload.Payload{"seo": payload.String("flat")}

	cs := Compute(from, to)
	require.Equal(t, 1, cs.Len())
	assert.Equal(t, payload.Path{"seo"}, cs.Changes()[0].Path)
	assert.Equal(t, OpModified, cs.Changes()[0].Op)
}

func TestComputeListsAreAtomic(t *testing.T) {
	from := payload.Payload{"tags": payload.List(payload.String("a"), payload.String("b"))}
	to := payload.Payload{"tags": payload.List(payload.String("a"), payload.String("c"))}

	cs := Compute(from, to)
	require.Equal(t, 1, cs.Len())
	assert.Equal(t, "tags", cs.Changes()[0].Path.String())
}

func TestApplyReproducesTarget(t *testing.T) {
	from := payload.Payload{
		"title": payload.String("v1"),
		"gone":  payload.Bool(true),
		"seo":   payload.Map(payload.Payload{"slug": payload.String("a")}),
	}
	to := payload.Payload{
		"title": payload.String("v2"),
		"seo":   payload.Map(payload.Payload{"slug": payload.String("a"), "desc": payload.String("d")}),
		"tags":  payload.List(payload.String("x")),
	}

	got, err := Compute(from, to).Apply(from)
	require.NoError(t, err)
	assert.True(t, to.Equal(got))

	_, stillThere := from["gone"]
	assert.True(t, stillThere, "apply must not mutate its input")
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "added", OpAdded.String())
	assert.Equal(t, "removed", OpRemoved.String())
	assert.Equal(t, "modified", OpModified.String())
}
