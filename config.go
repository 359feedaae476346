package media_fetch

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
)

var ErrEmptyTargetName = errors.New("target file name is empty")

const DefaultTargetFileTemplate = "{{.Platform}}-{{.ID}}.{{.Ext}}"

type DownloadConfig interface {
	GetTargetPath(args TargetArgs) (string, error)
}

// TargetArgs are the values available to the target file template.
type TargetArgs struct {
	Platform Platform
	ID       string
	Title    string
	Ext      string
}

type downloadConfig struct {
	TargetDir          string
	TargetFileTemplate *template.Template
}

func NewDownloadConfig(targetDir string) DownloadConfig {
	return NewDownloadConfigTemplate(targetDir, template.Must(template.New("target_file").Parse(DefaultTargetFileTemplate)))
}

func NewDownloadConfigTemplate(targetDir string, tmpl *template.Template) DownloadConfig {
	if targetDir == "" {
		targetDir = "."
	}
	return &downloadConfig{
		TargetDir:          targetDir,
		TargetFileTemplate: tmpl,
	}
}

func (c *downloadConfig) GetTargetPath(args TargetArgs) (string, error) {
	if args.Ext == "" {
		args.Ext = "mp4"
	}
	if args.ID == "" {
		args.ID = "media"
	}
	builder := strings.Builder{}
	if err := c.TargetFileTemplate.Execute(&builder, &args); err != nil {
		return "", err
	}
	name := SanitizeFilename(builder.String())
	if name == "" {
		return "", ErrEmptyTargetName
	}
	return filepath.Join(c.TargetDir, name), nil
}

var (
	spaceRegex       = regexp.MustCompile(`\s+`)
	filenameReplacer = strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "",
		"?", "",
		"\"", "",
		"<", "",
		">", "",
		"|", "",
		"\n", " ",
		"\r", "",
	)
)

// SanitizeFilename removes or replaces characters that are invalid in file names.
func SanitizeFilename(name string) string {
	result := filenameReplacer.Replace(name)
	result = spaceRegex.ReplaceAllString(result, " ")
	result = strings.TrimSpace(result)
	result = strings.Trim(result, ".")
	// Most filesystems limit names to 255 bytes; CJK runes take up to 4 bytes each.
	const maxRunes = 60
	if runes := []rune(result); len(runes) > maxRunes {
		ext := filepath.Ext(result)
		keep := maxRunes - len([]rune(ext))
		if keep < 1 {
			keep = maxRunes
			ext = ""
		}
		result = strings.TrimSpace(string(runes[:keep])) + ext
	}
	return result
}
