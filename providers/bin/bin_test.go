package bin

import (
	"context"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	assert := assert_.New(t)

	_, err := Match("file:///etc/passwd")
	assert.Error(err)

	a, err := Match("https://example.com/watch/1")
	assert.Nil(err)
	b, err := Match("https://example.com/watch/1")
	assert.Nil(err)
	ca, _ := a.Candidates(context.Background())
	cb, _ := b.Candidates(context.Background())
	assert.Equal(ca.ID, cb.ID)
	assert.Len(ca.ID, 16)
	assert.Equal("https://example.com/watch/1", ca.Variants[0].URL)
}
