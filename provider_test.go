package media_fetch

import (
	"context"
	"errors"
	"strings"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

type testSource struct {
	url string
}

func (s *testSource) URL() string        { return s.url }
func (s *testSource) Platform() Platform { return Classify(s.url) }
func (s *testSource) Candidates(ctx context.Context) (*Candidates, error) {
	return &Candidates{Platform: s.Platform(), Variants: []MediaCandidate{{URL: s.url}}}, nil
}

func prefixMatcher(prefix string) MatchFunc {
	return func(s string) (Source, error) {
		if strings.HasPrefix(s, prefix) {
			return &testSource{url: s}, nil
		}
		return nil, errors.New("no prefix " + prefix)
	}
}

func TestProviderRegistry_Add(t *testing.T) {
	assert := assert_.New(t)
	var r ProviderRegistry

	assert.ErrorIs(r.Add(Provider{Name: "", Match: prefixMatcher("a")}), ErrInvalidProvider)
	assert.ErrorIs(r.Add(Provider{Name: "a"}), ErrInvalidProvider)
	assert.Nil(r.Create("a", prefixMatcher("a")))
	assert.ErrorIs(r.Create("a", prefixMatcher("a")), ErrDuplicateProvider)
	assert.Panics(func() { r.MustCreate("a", prefixMatcher("a")) })
}

func TestProviderRegistry_Priority(t *testing.T) {
	assert := assert_.New(t)
	var r ProviderRegistry

	r.MustCreate("first", prefixMatcher("https://"))
	r.MustCreate("second", prefixMatcher("https://"))
	r.MustCreatePriority("low", prefixMatcher("https://"), PriorityLowest)
	r.MustCreatePriority("high", prefixMatcher("https://example"), PriorityHighest)
	// Equal priorities keep registration order
	assert.Equal([]string{"high", "first", "second", "low"}, r.List())

	m, err := r.Match("https://example.com/a.mp4")
	assert.Nil(err)
	assert.Equal("high", m.ProviderName)

	m, err = r.Match("https://other.com/a.mp4")
	assert.Nil(err)
	assert.Equal("first", m.ProviderName)

	assert.Nil(r.SetPriority("low", PriorityHighest))
	m, err = r.Match("https://other.com/a.mp4")
	assert.Nil(err)
	assert.Equal("low", m.ProviderName)
	priority, err := r.GetPriority("low")
	assert.Nil(err)
	assert.Equal(PriorityHighest, priority)

	_, err = r.GetPriority("missing")
	assert.ErrorIs(err, ErrUnknownProvider)
	assert.ErrorIs(r.SetPriority("missing", 0), ErrUnknownProvider)
}

func TestProviderRegistry_Match_NoMatch(t *testing.T) {
	assert := assert_.New(t)
	var r ProviderRegistry

	_, err := r.Match("https://example.com")
	assert.ErrorIs(err, ErrNoMatch)

	r.MustCreate("a", prefixMatcher("a"))
	r.MustCreate("b", prefixMatcher("b"))
	_, err = r.Match("https://example.com")
	assert.ErrorIs(err, ErrNoMatch)
	assert.Contains(err.Error(), "[a]")
	assert.Contains(err.Error(), "[b]")
}

func TestProviderRegistry_MatchWith(t *testing.T) {
	assert := assert_.New(t)
	var r ProviderRegistry
	r.MustCreate("a", prefixMatcher("a"))

	m, err := r.MatchWith("a", "abc")
	assert.Nil(err)
	assert.Equal("abc", m.Source.URL())

	_, err = r.MatchWith("a", "xyz")
	assert.ErrorIs(err, ErrNoMatch)
	_, err = r.MatchWith("missing", "abc")
	assert.ErrorIs(err, ErrUnknownProvider)
}
