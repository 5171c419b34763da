package contenthash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/contentvc/pkg/payload"
)

func TestHashDeterministic(t *testing.T) {
	p := payload.Payload{
		"headline": payload.String("A"),
		"body":     payload.Map(payload.Payload{"text": payload.String("x"), "words": payload.Number(1)}),
	}
	parent := Of(payload.Payload{"headline": payload.String("root")})

	first := Of(p, parent)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Of(p.Clone(), parent))
	}
}

func TestHashChangesWithEveryField(t *testing.T) {
	base := payload.Payload{
		"title": payload.String("v1"),
		"price": payload.Number(10),
		"live":  payload.Bool(true),
		"tags":  payload.List(payload.String("a")),
	}
	h := Of(base)

	mutations := map[string]payload.Value{
		"title": payload.String("v2"),
		"price": payload.Number(11),
		"live":  payload.Bool(false),
		"tags":  payload.List(payload.String("b")),
	}
	for field, v := range mutations {
		p := base.Clone()
		p[field] = v
		assert.NotEqual(t, h, Of(p), "changing %s must change the hash", field)
	}

	extra := base.Clone()
	extra["new"] = payload.String("")
	assert.NotEqual(t, h, Of(extra))
}

func TestHashDependsOnParents(t *testing.T) {
	p := payload.Payload{"title": payload.String("same")}
	a := Of(payload.Payload{"title": payload.String("a")})
	b := Of(payload.Payload{"title": payload.String("b")})

	assert.NotEqual(t, Of(p), Of(p, a))
	assert.NotEqual(t, Of(p, a), Of(p, b))
	assert.NotEqual(t, Of(p, a, b), Of(p, b, a), "parent order is significant")
}

func TestParseRoundTrip(t *testing.T) {
	h := Of(payload.Payload{"k": payload.String("v")})
	got, err := Parse(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Len(t, h.Short(), 8)
	assert.False(t, h.IsZero())
	assert.True(t, Hash{}.IsZero())

	_, err = Parse("abcd")
	assert.Error(t, err)
	_, err = Parse("zz")
	assert.Error(t, err)
}
