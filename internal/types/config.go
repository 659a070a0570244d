package types

import (
	"time"

	"confhub/internal/value"
)

// Config represents a named, versioned piece of dynamic configuration.
// The config row itself is the default variant.
type Config struct {
	ID          string       `json:"id"`
	ProjectID   string       `json:"project_id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Version     int64        `json:"version"`
	Value       value.Value  `json:"value"`
	Schema      *value.Value `json:"schema,omitempty"`
	Overrides   []Override   `json:"overrides"`
	Variants    []Variant    `json:"variants"`
	Maintainers []string     `json:"maintainers"`
	Editors     []string     `json:"editors"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Variant represents an environment specific specialization of a config
type Variant struct {
	EnvironmentID    string       `json:"environment_id"`
	Value            value.Value  `json:"value"`
	Schema           *value.Value `json:"schema,omitempty"`
	Overrides        []Override   `json:"overrides"`
	UseDefaultSchema bool         `json:"use_default_schema"`
}

// Content is the editable part of a config that is frozen in every version
type Content struct {
	Description string       `json:"description"`
	Value       value.Value  `json:"value"`
	Schema      *value.Value `json:"schema,omitempty"`
	Overrides   []Override   `json:"overrides"`
	Variants    []Variant    `json:"variants"`
	Maintainers []string     `json:"maintainers"`
	Editors     []string     `json:"editors"`
}

// ConfigVersion is an immutable snapshot of a config at a given version
type ConfigVersion struct {
	ConfigID    string    `json:"config_id"`
	Version     int64     `json:"version"`
	Content     Content   `json:"content"`
	AuthorEmail string    `json:"author_email"`
	CreatedAt   time.Time `json:"created_at"`
}

// ConfigVersionInfo is the list view of a ConfigVersion
type ConfigVersionInfo struct {
	Version     int64     `json:"version"`
	Description string    `json:"description"`
	AuthorEmail string    `json:"author_email"`
	CreatedAt   time.Time `json:"created_at"`
}

// Content returns the editable content of the config
func (c *Config) Content() Content {
	return Content{
		Description: c.Description,
		Value:       c.Value,
		Schema:      c.Schema,
		Overrides:   c.Overrides,
		Variants:    c.Variants,
		Maintainers: c.Maintainers,
		Editors:     c.Editors,
	}
}

// ApplyContent replaces the editable content of the config
func (c *Config) ApplyContent(content Content) {
	c.Description = content.Description
	c.Value = content.Value
	c.Schema = content.Schema
	c.Overrides = content.Overrides
	c.Variants = content.Variants
	c.Maintainers = content.Maintainers
	c.Editors = content.Editors
}

// Variant returns the variant for environmentID if one exists
func (c *Config) Variant(environmentID string) (*Variant, bool) {
	for i := range c.Variants {
		if c.Variants[i].EnvironmentID == environmentID {
			return &c.Variants[i], true
		}
	}
	return nil, false
}

// Resolved returns the base value and overrides that apply to environmentID.
// Configs without a variant for the environment fall back to the default variant.
func (c *Config) Resolved(environmentID string) (value.Value, []Override) {
	if v, ok := c.Variant(environmentID); ok {
		return v.Value, v.Overrides
	}
	return c.Value, c.Overrides
}

// EffectiveSchema returns the schema that governs the variant's values
func (c *Config) EffectiveSchema(v *Variant) *value.Value {
	if v == nil {
		return c.Schema
	}
	if v.UseDefaultSchema {
		return c.Schema
	}
	return v.Schema
}

// IsMaintainer reports whether email maintains the config
func (c *Config) IsMaintainer(email string) bool {
	return containsEmail(c.Maintainers, email)
}

// IsEditor reports whether email can edit the config contents
func (c *Config) IsEditor(email string) bool {
	return containsEmail(c.Editors, email) || containsEmail(c.Maintainers, email)
}

func containsEmail(list []string, email string) bool {
	for _, e := range list {
		if e == email {
			return true
		}
	}
	return false
}
