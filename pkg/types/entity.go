package types

// Entity is a named node of the cybersecurity knowledge graph.
//
// It is a tagged variant: the concrete type is one of *Threat, *Vulnerability,
// *Mitigation or *AttackPattern, selected by Type(). Type-specific fields are
// reached with a type switch.
type Entity interface {
	Name() string
	Type() EntityType
	Description() string

	// Attributes flattens the entity into the key/value form used by graph
	// export, entity context and prompt rendering.
	Attributes() map[string]any
}

// baseEntity carries the fields every entity variant shares.
type baseEntity struct {
	name        string
	description string
}

func (b baseEntity) Name() string        { return b.name }
func (b baseEntity) Description() string { return b.description }

// Threat is an attack or malicious activity.
type Threat struct {
	baseEntity
	Severity string // low, medium, high, critical
}

// NewThreat creates a threat entity.
func NewThreat(name, severity, description string) *Threat {
	return &Threat{baseEntity: baseEntity{name: name, description: description}, Severity: severity}
}

func (t *Threat) Type() EntityType { return EntityTypeThreat }

func (t *Threat) Attributes() map[string]any {
	return map[string]any{
		"type":        string(EntityTypeThreat),
		"severity":    t.Severity,
		"description": t.description,
	}
}

// Vulnerability is a weakness exploitable by a threat.
type Vulnerability struct {
	baseEntity
	CVSS float64
}

// NewVulnerability creates a vulnerability entity.
func NewVulnerability(name string, cvss float64, description string) *Vulnerability {
	return &Vulnerability{baseEntity: baseEntity{name: name, description: description}, CVSS: cvss}
}

func (v *Vulnerability) Type() EntityType { return EntityTypeVulnerability }

func (v *Vulnerability) Attributes() map[string]any {
	return map[string]any{
		"type":        string(EntityTypeVulnerability),
		"cvss":        v.CVSS,
		"description": v.description,
	}
}

// Mitigation is a defensive control.
type Mitigation struct {
	baseEntity
	Effectiveness string // low, medium, high
}

// NewMitigation creates a mitigation entity.
func NewMitigation(name, effectiveness, description string) *Mitigation {
	return &Mitigation{baseEntity: baseEntity{name: name, description: description}, Effectiveness: effectiveness}
}

func (m *Mitigation) Type() EntityType { return EntityTypeMitigation }

func (m *Mitigation) Attributes() map[string]any {
	return map[string]any{
		"type":          string(EntityTypeMitigation),
		"effectiveness": m.Effectiveness,
		"description":   m.description,
	}
}

// AttackPattern is a technique used by threats. It has no extra fields.
type AttackPattern struct {
	baseEntity
}

// NewAttackPattern creates an attack pattern entity.
func NewAttackPattern(name, description string) *AttackPattern {
	return &AttackPattern{baseEntity: baseEntity{name: name, description: description}}
}

func (a *AttackPattern) Type() EntityType { return EntityTypeAttackPattern }

func (a *AttackPattern) Attributes() map[string]any {
	return map[string]any{
		"type":        string(EntityTypeAttackPattern),
		"description": a.description,
	}
}

// EffectivenessOf returns the effectiveness of a mitigation entity, or
// "unknown" for any other variant.
func EffectivenessOf(e Entity) string {
	if m, ok := e.(*Mitigation); ok && m.Effectiveness != "" {
		return m.Effectiveness
	}
	return "unknown"
}

// Compile-time assertions.
var (
	_ Entity = (*Threat)(nil)
	_ Entity = (*Vulnerability)(nil)
	_ Entity = (*Mitigation)(nil)
	_ Entity = (*AttackPattern)(nil)
)
