package mapping

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Descriptor declares mappings without Go types, typically for tooling that
// works from a mapping file:
//
//	types:
//	  - name: Poco
//	    properties:
//	      - {name: Id, type: int64}
//	      - {name: Name, type: string, size: 100}
//	  - name: Book
//	    properties:
//	      - {name: Id, type: int64}
//	      - {name: Author, reference: Author, ondelete: cascade}
type Descriptor struct {
	Types []TypeDescriptor `yaml:"types"`
}

// TypeDescriptor describes one type.
type TypeDescriptor struct {
	Name        string                 `yaml:"name"`
	Table       string                 `yaml:"table,omitempty"`
	Schema      string                 `yaml:"schema,omitempty"`
	Key         string                 `yaml:"key,omitempty"`
	Complex     bool                   `yaml:"complex,omitempty"`
	Properties  []PropertyDescriptor   `yaml:"properties"`
	Collections []CollectionDescriptor `yaml:"collections,omitempty"`
}

// PropertyDescriptor describes a scalar, reference or complex property.
// Exactly one of Type, Reference and Complex is set.
type PropertyDescriptor struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type,omitempty"`
	Reference string `yaml:"reference,omitempty"`
	Complex   string `yaml:"complex,omitempty"`
	Column    string `yaml:"column,omitempty"`
	Size      int    `yaml:"size,omitempty"`
	Key       bool   `yaml:"key,omitempty"`
	Auto      *bool  `yaml:"auto,omitempty"`
	Nullable  *bool  `yaml:"nullable,omitempty"`
	Index     string `yaml:"index,omitempty"`
	OnDelete  string `yaml:"ondelete,omitempty"`
	OnUpdate  string `yaml:"onupdate,omitempty"`
}

// CollectionDescriptor describes a one-to-many navigation.
type CollectionDescriptor struct {
	Name       string   `yaml:"name"`
	Element    string   `yaml:"element"`
	ForeignKey string   `yaml:"fk,omitempty"`
	Include    []string `yaml:"include,omitempty"`
}

// ParseDescriptor decodes a YAML descriptor document.
func ParseDescriptor(r io.Reader) (*Descriptor, error) {
	var d Descriptor
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		if err == io.EOF {
			return &d, nil
		}
		return nil, fmt.Errorf("elm: parse descriptor: %w", err)
	}
	return &d, nil
}

func (td *TypeDescriptor) describe(all map[string]*TypeDescriptor) (*typeDesc, error) {
	d := &typeDesc{
		id:      TypeID(td.Name),
		name:    td.Name,
		table:   td.Table,
		schema:  td.Schema,
		key:     td.Key,
		complex: td.Complex,
	}
	for _, pd := range td.Properties {
		h := hints{column: pd.Column, size: pd.Size, key: pd.Key, index: pd.Index}
		if pd.Auto != nil {
			h.auto, h.noauto = *pd.Auto, !*pd.Auto
		}
		if pd.Nullable != nil {
			h.null, h.notnull = *pd.Nullable, !*pd.Nullable
		}
		var err error
		if h.onDelete, err = ParseConstraintAction(pd.OnDelete); err != nil {
			return nil, configErr(td.Name, pd.Name, err)
		}
		if h.onUpdate, err = ParseConstraintAction(pd.OnUpdate); err != nil {
			return nil, configErr(td.Name, pd.Name, err)
		}
		f := fieldDesc{name: pd.Name, hints: h}
		switch {
		case pd.Reference != "":
			f.kind = KindReference
			f.refName = pd.Reference
		case pd.Complex != "":
			nested, ok := all[pd.Complex]
			if !ok {
				return nil, configErr(td.Name, pd.Name, fmt.Errorf("%w: complex type %q", ErrUnknownProperty, pd.Complex))
			}
			nd, err := nested.describe(all)
			if err != nil {
				return nil, err
			}
			nd.complex = true
			f.nested = nd
		default:
			k, err := ParseKind(pd.Type)
			if err != nil {
				return nil, configErr(td.Name, pd.Name, err)
			}
			f.kind = k
			f.hints.json = k == KindJSON
		}
		d.fields = append(d.fields, f)
	}
	for _, cd := range td.Collections {
		d.fields = append(d.fields, fieldDesc{
			name:       cd.Name,
			collection: true,
			elemName:   cd.Element,
			hints:      hints{fk: cd.ForeignKey, include: cd.Include},
		})
	}
	return d, nil
}
