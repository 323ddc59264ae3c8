// Package template renders page templates with html/template against a data
// context read from the locals file, optionally re-indents the markup and
// writes it with the server-side extension.
package template

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/themesmith/internal/errors"
)

// Locals is the data context passed to every template.
type Locals map[string]interface{}

// LoadLocals reads the data context from path. JSON is assumed unless the
// file ends in .yml or .yaml. An empty path yields empty locals.
func LoadLocals(path string) (Locals, error) {
	locals := Locals{}
	if path == "" {
		return locals, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeLocals, "reading template locals", err).
			WithLocation(path, 0, 0)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		err = yaml.Unmarshal(data, &locals)
	default:
		err = json.Unmarshal(data, &locals)
	}
	if err != nil {
		return nil, errors.NewCompileError(errors.ErrCodeLocals, "parsing template locals", err).
			WithLocation(path, 0, 0)
	}

	if locals == nil {
		locals = Locals{}
	}
	return locals, nil
}
