package datapkg

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/crmvault/crmvault/internal/schema"
)

// DescriptorName is the package descriptor filename inside a backup directory.
const DescriptorName = "package.json"

// Record is a single row of an entity, field key to value. Values loaded from
// CSV are strings, JSON arrays or JSON objects depending on the cell content.
type Record = map[string]any

// Resource describes one entity's data within a package.
type Resource struct {
	Entity string         `json:"name"`
	Path   string         `json:"path"`
	Fields []schema.Field `json:"fields,omitempty"`
	Count  int            `json:"count"`
}

// Package is the on-disk backup: a descriptor plus one CSV per entity.
type Package struct {
	Name      string     `json:"name"`
	Created   time.Time  `json:"created"`
	Resources []Resource `json:"resources"`

	dir string
}

// New returns an empty package rooted at dir.
func New(dir, name string) *Package {
	return &Package{Name: name, Created: time.Now().UTC(), dir: dir}
}

// Load reads the package descriptor from dir.
func Load(dir string) (*Package, error) {
	buf, err := os.ReadFile(filepath.Join(dir, DescriptorName))
	if err != nil {
		return nil, errors.Wrapf(err, "reading package descriptor in %s", dir)
	}
	var pkg Package
	if err := json.Unmarshal(buf, &pkg); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", DescriptorName)
	}
	pkg.dir = dir
	return &pkg, nil
}

// Dir returns the package root directory.
func (p *Package) Dir() string {
	return p.dir
}

// Save writes the package descriptor back to disk.
func (p *Package) Save() error {
	buf, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding package descriptor")
	}
	if err := os.WriteFile(filepath.Join(p.dir, DescriptorName), buf, 0644); err != nil {
		return errors.Wrap(err, "writing package descriptor")
	}
	return nil
}

// Resource returns the resource for an entity.
func (p *Package) Resource(entity string) (*Resource, bool) {
	for i := range p.Resources {
		if p.Resources[i].Entity == entity {
			return &p.Resources[i], true
		}
	}
	return nil, false
}

// SetResource replaces or appends the resource for res.Entity.
func (p *Package) SetResource(res Resource) {
	for i := range p.Resources {
		if p.Resources[i].Entity == res.Entity {
			p.Resources[i] = res
			return
		}
	}
	p.Resources = append(p.Resources, res)
}

// Fields returns the stored field schema for an entity.
func (p *Package) Fields(entity string) []schema.Field {
	if res, ok := p.Resource(entity); ok {
		return res.Fields
	}
	return nil
}

// SetFields replaces the stored field schema for an entity.
func (p *Package) SetFields(entity string, fields []schema.Field) {
	if res, ok := p.Resource(entity); ok {
		res.Fields = fields
		return
	}
	p.SetResource(Resource{Entity: entity, Path: entity + ".csv", Fields: fields})
}

// LoadRecords reads the entity's CSV into records.
func (p *Package) LoadRecords(entity string) ([]Record, error) {
	res, ok := p.Resource(entity)
	if !ok {
		return nil, errors.Newf("package has no resource for entity %s", entity)
	}
	return LoadCSV(filepath.Join(p.dir, res.Path))
}

// SaveRecords writes the entity's records back to its CSV and updates the
// resource count. Column order follows the stored field schema, extra keys
// appended alphabetically.
func (p *Package) SaveRecords(entity string, records []Record) error {
	res, ok := p.Resource(entity)
	if !ok {
		res = &Resource{Entity: entity, Path: entity + ".csv"}
		p.Resources = append(p.Resources, *res)
		res, _ = p.Resource(entity)
	}
	if err := SaveCSV(filepath.Join(p.dir, res.Path), records, schema.Keys(res.Fields)); err != nil {
		return err
	}
	res.Count = len(records)
	return nil
}
