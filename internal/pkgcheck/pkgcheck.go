// Package pkgcheck validates a package descriptor structurally before any
// command trusts its contents.
package pkgcheck

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/crmvault/crmvault/internal/datapkg"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const descriptorSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "resources"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "created": {"type": "string"},
    "resources": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "path"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "path": {"type": "string", "minLength": 1},
          "count": {"type": "integer", "minimum": 0},
          "fields": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["key", "name", "field_type"],
              "properties": {
                "id": {"type": "integer"},
                "key": {"type": "string", "minLength": 1},
                "name": {"type": "string"},
                "field_type": {"type": "string", "minLength": 1},
                "edit_flag": {"type": "boolean"},
                "options": {
                  "type": "array",
                  "items": {
                    "type": "object",
                    "required": ["id", "label"],
                    "properties": {
                      "id": {"type": "integer"},
                      "label": {"type": "string"}
                    }
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

var compiled = jsonschema.MustCompileString("package.schema.json", descriptorSchema)

// Descriptor validates the package descriptor in dir against the schema and
// checks that every resource's data file exists.
func Descriptor(dir string) error {
	path := filepath.Join(dir, datapkg.DescriptorName)
	buf, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}
	var doc any
	if err := json.Unmarshal(buf, &doc); err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}
	if err := compiled.Validate(doc); err != nil {
		return errors.Wrapf(err, "invalid %s", datapkg.DescriptorName)
	}
	pkg, err := datapkg.Load(dir)
	if err != nil {
		return err
	}
	for _, res := range pkg.Resources {
		if _, err := os.Stat(filepath.Join(dir, res.Path)); err != nil {
			return errors.Newf("resource %s: data file %s missing", res.Entity, res.Path)
		}
	}
	return nil
}
