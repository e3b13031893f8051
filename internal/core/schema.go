package core

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Schema is the cached column layout of a database, in the order reported by
// the server. It is the authoritative list of writable columns per table.
type Schema struct {
	// Database is the schema name the layout was read from.
	Database string

	// Tables holds one entry per table, in server order.
	Tables []TableSchema
}

// TableSchema is the ordered column list of a single table.
type TableSchema struct {
	Name    string
	Columns []Column
}

// Column describes one column as reported by SHOW COLUMNS.
type Column struct {
	// Name is the column name.
	Name string `yaml:"-" json:"name"`

	// Type is the base type without its length, e.g. "varchar".
	Type string `yaml:"type" json:"type"`

	// Length is the declared display length, zero when there is none.
	Length int `yaml:"length,omitempty" json:"length,omitempty"`

	// Nullable indicates whether the column accepts NULL.
	Nullable bool `yaml:"nullable" json:"nullable"`

	// Key is the index kind (PRI, UNI, MUL) or empty.
	Key string `yaml:"key" json:"key"`
}

// Table returns the layout of the named table.
func (s *Schema) Table(name string) (*TableSchema, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// Fillable returns the ordered column names of a table, or nil if unknown.
func (s *Schema) Fillable(table string) []string {
	t, ok := s.Table(table)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

// MarshalYAML writes the schema as table -> column -> definition mappings so
// that column order survives the round trip.
func (s Schema) MarshalYAML() (interface{}, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, t := range s.Tables {
		cols := &yaml.Node{Kind: yaml.MappingNode}
		for _, c := range t.Columns {
			def := &yaml.Node{}
			if err := def.Encode(c); err != nil {
				return nil, fmt.Errorf("failed to encode column %s.%s: %w", t.Name, c.Name, err)
			}
			cols.Content = append(cols.Content, scalar(c.Name), def)
		}
		root.Content = append(root.Content, scalar(t.Name), cols)
	}
	return root, nil
}

// UnmarshalYAML reads the layout written by MarshalYAML.
func (s *Schema) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("schema document must be a mapping, got kind %d", node.Kind)
	}
	s.Tables = s.Tables[:0]
	for i := 0; i+1 < len(node.Content); i += 2 {
		t := TableSchema{Name: node.Content[i].Value}
		cols := node.Content[i+1]
		for j := 0; j+1 < len(cols.Content); j += 2 {
			var c Column
			if err := cols.Content[j+1].Decode(&c); err != nil {
				return fmt.Errorf("failed to decode column %s.%s: %w", t.Name, cols.Content[j].Value, err)
			}
			c.Name = cols.Content[j].Value
			t.Columns = append(t.Columns, c)
		}
		s.Tables = append(s.Tables, t)
	}
	return nil
}

// DDL holds the column/definition clauses of every table, as extracted from
// SHOW CREATE TABLE, ready to be replayed.
type DDL struct {
	Tables []TableDDL
}

// TableDDL is the definition list of a single table.
type TableDDL struct {
	Name        string
	Definitions []string
}

// MarshalYAML writes table -> [definitions] preserving table order.
func (d DDL) MarshalYAML() (interface{}, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, t := range d.Tables {
		defs := &yaml.Node{}
		if err := defs.Encode(t.Definitions); err != nil {
			return nil, fmt.Errorf("failed to encode definitions of %s: %w", t.Name, err)
		}
		root.Content = append(root.Content, scalar(t.Name), defs)
	}
	return root, nil
}

// UnmarshalYAML reads the layout written by MarshalYAML.
func (d *DDL) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("ddl document must be a mapping, got kind %d", node.Kind)
	}
	d.Tables = d.Tables[:0]
	for i := 0; i+1 < len(node.Content); i += 2 {
		t := TableDDL{Name: node.Content[i].Value}
		if err := node.Content[i+1].Decode(&t.Definitions); err != nil {
			return fmt.Errorf("failed to decode definitions of %s: %w", t.Name, err)
		}
		d.Tables = append(d.Tables, t)
	}
	return nil
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}
