package model

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Model is an immutable, validated Bayesian network: a Structure plus
// exactly one CPD per node, indexed by VarID.
type Model struct {
	id        string
	structure *Structure
	cpds      map[VarID]*CPD
}

func (m *Model) ID() string {
	return m.id
}

func (m *Model) Structure() *Structure {
	return m.structure
}

func (m *Model) Registry() *Registry {
	return m.structure.reg
}

// CPD returns the table owned by node.
func (m *Model) CPD(node string) (*CPD, error) {
	id, err := m.structure.resolveNode(node)
	if err != nil {
		return nil, err
	}
	return m.cpds[id], nil
}

func (m *Model) CPDByID(id VarID) *CPD {
	return m.cpds[id]
}

// CPDs returns the tables in node insertion order.
func (m *Model) CPDs() []*CPD {
	out := make([]*CPD, 0, len(m.cpds))
	for _, id := range m.structure.order {
		out = append(out, m.cpds[id])
	}
	return out
}

// Warnings collects the InsufficientDataWarnings of every CPD.
func (m *Model) Warnings() []InsufficientDataWarning {
	var out []InsufficientDataWarning
	for _, cpd := range m.CPDs() {
		out = append(out, cpd.Warnings...)
	}
	return out
}

// Fingerprint hashes structure and table contents. Models estimated from
// identical inputs have identical fingerprints.
func (m *Model) Fingerprint() uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, cpd := range m.CPDs() {
		writeVariable(d, cpd.Node)
		d.WriteString("|")
		for _, p := range cpd.Parents {
			writeVariable(d, p)
			d.WriteString(",")
		}
		for _, v := range cpd.Values {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			d.Write(buf[:])
		}
	}
	return d.Sum64()
}

// writeVariable hashes the name and the ordered domain, so relabelled or
// reordered states change the fingerprint.
func writeVariable(d *xxhash.Digest, v Variable) {
	d.WriteString(v.Name)
	d.WriteString("{")
	for _, st := range v.States {
		d.WriteString(st)
		d.WriteString(";")
	}
	d.WriteString("}")
}

// Builder accumulates CPDs and produces a Model once, validated atomically.
type Builder struct {
	structure *Structure
	cpds      []*CPD
}

func NewBuilder(s *Structure) *Builder {
	return &Builder{structure: s}
}

func (b *Builder) Add(cpds ...*CPD) *Builder {
	b.cpds = append(b.cpds, cpds...)
	return b
}

// Build validates the accumulated CPDs against the structure. On failure it
// returns ValidationErrors listing every violation.
func (b *Builder) Build() (*Model, error) {
	if _, err := b.structure.TopologicalIDs(); err != nil {
		return nil, err
	}
	if errs := check(b.structure, b.cpds); len(errs) > 0 {
		return nil, errs
	}
	m := &Model{
		id:        uuid.New().String(),
		structure: b.structure,
		cpds:      make(map[VarID]*CPD, len(b.cpds)),
	}
	for _, cpd := range b.cpds {
		m.cpds[cpd.Node.ID] = cpd
	}
	return m, nil
}

// Check re-validates a model. It returns nil or ValidationErrors.
func Check(m *Model) error {
	if m == nil {
		return fmt.Errorf("%w: nil model", ErrValidation)
	}
	if errs := check(m.structure, m.CPDs()); len(errs) > 0 {
		return errs
	}
	return nil
}
