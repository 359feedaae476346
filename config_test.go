package media_fetch

import (
	"path/filepath"
	"testing"
	"text/template"

	assert_ "github.com/stretchr/testify/assert"
)

func TestDownloadConfig_GetTargetPath(t *testing.T) {
	assert := assert_.New(t)

	c := NewDownloadConfig("/downloads")
	p, err := c.GetTargetPath(TargetArgs{Platform: PlatformDouyin, ID: "7301234567890", Ext: "mp4"})
	assert.Nil(err)
	assert.Equal(filepath.Join("/downloads", "douyin-7301234567890.mp4"), p)

	p, err = c.GetTargetPath(TargetArgs{Platform: PlatformUnknown})
	assert.Nil(err)
	assert.Equal(filepath.Join("/downloads", "unknown-media.mp4"), p)

	tmpl := template.Must(template.New("t").Parse("{{.Title}}.{{.Ext}}"))
	c = NewDownloadConfigTemplate("", tmpl)
	p, err = c.GetTargetPath(TargetArgs{Title: "a/b: c?", Ext: "jpg"})
	assert.Nil(err)
	assert.Equal(filepath.Join(".", "a-b- c.jpg"), p)

	_, err = NewDownloadConfigTemplate("", template.Must(template.New("t").Parse("{{.Title}}"))).GetTargetPath(TargetArgs{Title: "???"})
	assert.ErrorIs(err, ErrEmptyTargetName)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"ASCII reserved characters", "test:file*name?with<special>chars|here", "test-filenamewithspecialcharshere"},
		{"Path separators", "path/to\\file", "path-to-file"},
		{"Trailing dots and spaces", "filename... ", "filename"},
		{"Multiple spaces", "file   name   here", "file name here"},
		{"Newlines", "file\nname", "file name"},
		{"Empty after sanitization", "???***", ""},
		{
			"Long name keeps extension",
			"这是一个非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常长的标题.mp4",
			"这是一个非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常非常.mp4",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert_.Equal(t, tt.expected, SanitizeFilename(tt.input))
		})
	}
}
