package util

import (
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestFilenameFromURLString(t *testing.T) {
	assert := assert_.New(t)

	cases := []struct {
		in       string
		expected string
		err      error
	}{
		{"https://cdn.example.com/video/abc.mp4", "abc.mp4", nil},
		{"https://cdn.example.com/video/abc.mp4?sig=1", "abc.mp4", nil},
		{"https://cdn.example.com/video/abc/", "abc", nil},
		{"https://cdn.example.com/", "", ErrNoFilename},
		{"https://cdn.example.com/a/..", "", ErrNoFilename},
	}
	for _, c := range cases {
		filename, err := FilenameFromURLString(c.in)
		assert.Equal(c.expected, filename, c.in)
		assert.ErrorIs(err, c.err, c.in)
	}

	_, err := FilenameFromURL(nil)
	assert.ErrorIs(err, ErrNoFilename)
}
