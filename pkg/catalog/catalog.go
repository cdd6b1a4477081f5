package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
)

// TypeDefinition describes one document type required or accepted for an
// owner kind. Catalog order is preserved: it drives display and export
// folder naming, nothing else.
type TypeDefinition struct {
	OwnerKind   domain.OwnerKind `yaml:"ownerKind"`
	Code        string           `yaml:"code"`
	DisplayName string           `yaml:"displayName"`
	Mandatory   bool             `yaml:"mandatory"`
	HasExpiry   bool             `yaml:"hasExpiry"`
}

// Catalog is an immutable registry of document types per owner kind,
// constructed once at startup and passed explicitly to consumers.
type Catalog struct {
	byKind map[domain.OwnerKind][]TypeDefinition
}

// New builds a catalog from an ordered definition list.
func New(defs []TypeDefinition) (*Catalog, error) {
	byKind := make(map[domain.OwnerKind][]TypeDefinition)
	seen := make(map[string]bool)
	for _, def := range defs {
		if def.Code == "" {
			return nil, fmt.Errorf("%w: catalog entry without code", domain.ErrValidation)
		}
		switch def.OwnerKind {
		case domain.OwnerWorker, domain.OwnerFaena, domain.OwnerCompany:
		default:
			return nil, fmt.Errorf("%w: catalog entry %q has unknown owner kind %q", domain.ErrValidation, def.Code, def.OwnerKind)
		}
		key := string(def.OwnerKind) + "/" + def.Code
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate catalog entry %s", domain.ErrValidation, key)
		}
		seen[key] = true
		byKind[def.OwnerKind] = append(byKind[def.OwnerKind], def)
	}
	return &Catalog{byKind: byKind}, nil
}

// Load reads catalog definitions from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var file struct {
		Types []TypeDefinition `yaml:"types"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(file.Types) == 0 {
		return nil, fmt.Errorf("%w: catalog file %s defines no types", domain.ErrValidation, path)
	}
	return New(file.Types)
}

// Types returns the ordered definitions for an owner kind. The returned
// slice is a copy; the catalog never mutates after construction.
func (c *Catalog) Types(kind domain.OwnerKind) []TypeDefinition {
	defs := c.byKind[kind]
	out := make([]TypeDefinition, len(defs))
	copy(out, defs)
	return out
}

// Required returns only the mandatory definitions for an owner kind, in
// catalog order.
func (c *Catalog) Required(kind domain.OwnerKind) []TypeDefinition {
	var out []TypeDefinition
	for _, def := range c.byKind[kind] {
		if def.Mandatory {
			out = append(out, def)
		}
	}
	return out
}

// Lookup returns the definition for (kind, code) when present. Combinations
// absent from the catalog are never required and never reported missing.
func (c *Catalog) Lookup(kind domain.OwnerKind, code string) (TypeDefinition, bool) {
	for _, def := range c.byKind[kind] {
		if def.Code == code {
			return def, true
		}
	}
	return TypeDefinition{}, false
}

// Default returns the built-in catalog: the required worker documents, the
// company certificates, and the faena contract paperwork the system has
// always tracked.
func Default() *Catalog {
	cat, err := New([]TypeDefinition{
		{OwnerKind: domain.OwnerWorker, Code: "REGISTRO_EPP", DisplayName: "Registro entrega EPP", Mandatory: true},
		{OwnerKind: domain.OwnerWorker, Code: "ENTREGA_RIOHS", DisplayName: "Entrega RIOHS", Mandatory: true},
		{OwnerKind: domain.OwnerWorker, Code: "IRL", DisplayName: "Información de riesgos laborales", Mandatory: true},
		{OwnerKind: domain.OwnerWorker, Code: "CONTRATO_TRABAJO", DisplayName: "Contrato de trabajo", Mandatory: true},
		{OwnerKind: domain.OwnerWorker, Code: "ANEXO_CONTRATO", DisplayName: "Anexo de contrato", Mandatory: true},
		{OwnerKind: domain.OwnerWorker, Code: "LIQUIDACIONES", DisplayName: "Liquidaciones de sueldo", Mandatory: true},
		{OwnerKind: domain.OwnerWorker, Code: "FINIQUITO", DisplayName: "Finiquito", Mandatory: true},
		{OwnerKind: domain.OwnerWorker, Code: "EXAMEN_MEDICO", DisplayName: "Examen médico (vigencia)", Mandatory: true, HasExpiry: true},
		{OwnerKind: domain.OwnerCompany, Code: "CERTIFICADO_CUMPLIMIENTO_LABORAL", DisplayName: "Certificado cumplimiento laboral", Mandatory: true},
		{OwnerKind: domain.OwnerCompany, Code: "CERTIFICADO_ACCIDENTABILIDAD", DisplayName: "Certificado accidentabilidad", Mandatory: true},
		{OwnerKind: domain.OwnerCompany, Code: "OTROS", DisplayName: "Otros"},
		{OwnerKind: domain.OwnerFaena, Code: "CONTRATO_FAENA", DisplayName: "Contrato de faena", Mandatory: true},
		{OwnerKind: domain.OwnerFaena, Code: "ANEXO_FAENA", DisplayName: "Anexo de faena"},
	})
	if err != nil {
		panic(err)
	}
	return cat
}
