package entity

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Config describes a single CRM entity type. All entity-specific behavior is
// data-driven from the Registry below; nothing else hardcodes entity names.
type Config struct {
	// Name is the canonical (plural) entity name.
	Name string

	// Endpoint is the remote collection path for records.
	Endpoint string

	// FieldsEndpoint is the remote path for the entity's field schema, or
	// empty when the entity has no custom-field support.
	FieldsEndpoint string

	// ReadOnly entities can be backed up but never pushed back.
	ReadOnly bool

	// MaxPageSize is the largest page the remote service accepts.
	MaxPageSize int
}

// HasFields reports whether the entity supports custom fields.
func (c Config) HasFields() bool {
	return c.FieldsEndpoint != ""
}

// Registry lists every known entity in backup order.
var Registry = []Config{
	{Name: "organizations", Endpoint: "/v1/organizations", FieldsEndpoint: "/v1/organizationFields", MaxPageSize: 500},
	{Name: "persons", Endpoint: "/v1/persons", FieldsEndpoint: "/v1/personFields", MaxPageSize: 500},
	{Name: "deals", Endpoint: "/v1/deals", FieldsEndpoint: "/v1/dealFields", MaxPageSize: 500},
	{Name: "activities", Endpoint: "/v1/activities", FieldsEndpoint: "/v1/activityFields", MaxPageSize: 500},
	{Name: "notes", Endpoint: "/v1/notes", MaxPageSize: 500},
	{Name: "products", Endpoint: "/v1/products", FieldsEndpoint: "/v1/productFields", MaxPageSize: 500},
	{Name: "files", Endpoint: "/v1/files", ReadOnly: true, MaxPageSize: 500},
	{Name: "users", Endpoint: "/v1/users", ReadOnly: true, MaxPageSize: 500},
}

// StoreOrder is the dependency order for reconciliation: entities referenced
// by others are synchronized before their dependents.
var StoreOrder = []string{"organizations", "persons", "deals", "activities", "notes", "products"}

// ReadonlyFields are server-computed record fields that must never be sent
// back on create/update.
var ReadonlyFields = map[string]bool{
	"add_time":                   true,
	"update_time":                true,
	"creator_user_id":            true,
	"first_char":                 true,
	"company_id":                 true,
	"active_flag":                true,
	"cc_email":                   true,
	"org_name":                   true,
	"owner_name":                 true,
	"person_name":                true,
	"next_activity_date":         true,
	"next_activity_time":         true,
	"next_activity_id":           true,
	"last_activity_id":           true,
	"last_activity_date":         true,
	"activities_count":           true,
	"done_activities_count":      true,
	"undone_activities_count":    true,
	"files_count":                true,
	"notes_count":                true,
	"followers_count":            true,
	"email_messages_count":       true,
	"picture_id":                 true,
	"last_incoming_mail_time":    true,
	"last_outgoing_mail_time":    true,
	"open_deals_count":           true,
	"related_open_deals_count":   true,
	"closed_deals_count":         true,
	"related_closed_deals_count": true,
	"won_deals_count":            true,
	"related_won_deals_count":    true,
	"lost_deals_count":           true,
	"related_lost_deals_count":   true,
}

// ReferencedEntity maps a reference field type to the entity its values
// point at.
func ReferencedEntity(fieldType string) (string, bool) {
	switch fieldType {
	case "org":
		return "organizations", true
	case "people":
		return "persons", true
	case "user":
		return "users", true
	}
	return "", false
}

// Get returns the entity config for an exact name.
func Get(name string) (Config, bool) {
	for _, c := range Registry {
		if c.Name == name {
			return c, true
		}
	}
	return Config{}, false
}

// Names returns every registered entity name in backup order.
func Names() []string {
	names := make([]string, 0, len(Registry))
	for _, c := range Registry {
		names = append(names, c.Name)
	}
	return names
}

// Match resolves a user-typed prefix to an entity config. An exact name wins,
// then a unique prefix; no match or multiple matches is an error naming the
// alternatives.
func Match(prefix string) (Config, error) {
	p := strings.ToLower(prefix)
	if c, ok := Get(p); ok {
		return c, nil
	}
	var matches []Config
	for _, c := range Registry {
		if strings.HasPrefix(c.Name, p) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return Config{}, errors.Newf("no entity matches prefix %q. Available: %s", prefix, strings.Join(Names(), ", "))
	case 1:
		return matches[0], nil
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Name
	}
	return Config{}, errors.Newf("ambiguous entity prefix %q matches: %s", prefix, strings.Join(names, ", "))
}

// MatchAll resolves multiple prefixes, deduplicating while preserving order.
func MatchAll(prefixes []string) ([]Config, error) {
	seen := make(map[string]bool)
	var result []Config
	for _, p := range prefixes {
		c, err := Match(p)
		if err != nil {
			return nil, err
		}
		if !seen[c.Name] {
			seen[c.Name] = true
			result = append(result, c)
		}
	}
	return result, nil
}
