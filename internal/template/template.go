// Package template loads campaign email templates by name and substitutes
// {{variable}} placeholders.
package template

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultTemplate is used whenever the named template cannot be loaded. A
// missing template degrades to this built-in body instead of failing the
// batch.
const DefaultTemplate = `<html>
<body>
    <p>Dear {{name}},</p>
    <p>Hello!</p>
    <p>We would be glad to get in touch regarding our product offering.
    If you are interested, simply reply to this email.</p>
    <p>Best regards,</p>
    <p>Elaine</p>
    <img src="{{tracker_url}}/track/{{email_id}}" width="1" height="1" />
</body>
</html>
`

// variable pattern for template substitution: {{variable_name}}
var varPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Store loads template files from a directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{dir: dir, logger: logger.With("component", "template")}
}

// Load returns the content of the named template, or the built-in default if
// the file is missing or unreadable.
func (s *Store) Load(name string) string {
	if name == "" {
		return DefaultTemplate
	}

	content, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		s.logger.Warn("template not loadable, using built-in default", "template", name, "error", err)
		return DefaultTemplate
	}
	return string(content)
}

// Render substitutes {{variable}} patterns in the template. Unknown
// variables are left untouched.
func Render(template string, vars map[string]string) string {
	if template == "" {
		return template
	}

	return varPattern.ReplaceAllStringFunc(template, func(match string) string {
		varName := strings.TrimSpace(match[2 : len(match)-2])
		if value, ok := vars[varName]; ok {
			return value
		}
		return match
	})
}
