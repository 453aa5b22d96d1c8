package hierarchy

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Stored metadata keys.
const (
	KeyCompany      = "company"
	KeyDepartment   = "department"
	KeyEmployee     = "employee"
	KeyLevel        = "level"
	KeyHierarchyKey = "hierarchy_key"
	KeySource       = "source"
	KeyChunkIndex   = "chunk_index"
)

// KeySeparator joins scope fields into a hierarchy key.
const KeySeparator = "|"

// Metadata is the hierarchy tag carried by every chunk.
//
// General chunks have no company. Every other level names its company and
// exactly the fields its level requires.
type Metadata struct {
	Company    string `json:"company,omitempty"`
	Department string `json:"department,omitempty"`
	Employee   string `json:"employee,omitempty"`
	Level      Level  `json:"level"`
}

// NewMetadata derives the level from which fields are set.
func NewMetadata(company, department, employee string) (Metadata, error) {
	m := Metadata{Company: company, Department: department, Employee: employee}
	switch {
	case company == "":
		m.Level = LevelGeneral
	case employee != "":
		m.Level = LevelEmployee
	case department != "":
		m.Level = LevelDepartment
	default:
		m.Level = LevelCompany
	}
	if err := m.Validate(); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

// Validate checks that the level agrees with the populated fields.
func (m Metadata) Validate() error {
	for _, f := range []string{m.Company, m.Department, m.Employee} {
		if err := validSegment(f); f != "" && err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
		}
	}

	var ok bool
	switch m.Level {
	case LevelGeneral:
		ok = m.Company == "" && m.Department == "" && m.Employee == ""
	case LevelCompany:
		ok = m.Company != "" && m.Department == "" && m.Employee == ""
	case LevelDepartment:
		ok = m.Company != "" && m.Department != "" && m.Employee == ""
	case LevelEmployee:
		ok = m.Company != "" && m.Department != "" && m.Employee != ""
	default:
		return fmt.Errorf("%w: unknown level %d", ErrInvalidMetadata, uint8(m.Level))
	}
	if !ok {
		return fmt.Errorf("%w: level %s inconsistent with company=%q department=%q employee=%q",
			ErrInvalidMetadata, m.Level, m.Company, m.Department, m.Employee)
	}
	return nil
}

// HierarchyKey joins the non-empty scope fields with KeySeparator.
// General chunks have the key "general".
func (m Metadata) HierarchyKey() string {
	if m.Company == "" {
		return LevelGeneral.String()
	}
	parts := []string{m.Company}
	if m.Department != "" {
		parts = append(parts, m.Department)
	}
	if m.Employee != "" {
		parts = append(parts, m.Employee)
	}
	return strings.Join(parts, KeySeparator)
}

// Partition returns the partition a chunk with this metadata belongs to.
func (m Metadata) Partition() Partition {
	if m.Level == LevelGeneral {
		return GeneralPartition
	}
	return CompanyPartition(m.Company)
}

// Map flattens the metadata into stored key/value pairs. Empty fields are omitted.
func (m Metadata) Map() map[string]string {
	out := map[string]string{
		KeyLevel:        m.Level.String(),
		KeyHierarchyKey: m.HierarchyKey(),
	}
	if m.Company != "" {
		out[KeyCompany] = m.Company
	}
	if m.Department != "" {
		out[KeyDepartment] = m.Department
	}
	if m.Employee != "" {
		out[KeyEmployee] = m.Employee
	}
	return out
}

// MetadataFromMap parses stored key/value pairs back into Metadata.
func MetadataFromMap(kv map[string]string) (Metadata, error) {
	level, err := ParseLevel(kv[KeyLevel])
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	m := Metadata{
		Company:    kv[KeyCompany],
		Department: kv[KeyDepartment],
		Employee:   kv[KeyEmployee],
		Level:      level,
	}
	if err := m.Validate(); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

// ChunkIndexFromMap reads the chunk sequence index, or -1 when absent.
func ChunkIndexFromMap(kv map[string]string) int {
	i, err := strconv.Atoi(kv[KeyChunkIndex])
	if err != nil {
		return -1
	}
	return i
}

func validSegment(s string) error {
	switch {
	case s == "":
		return fmt.Errorf("empty segment")
	case s == "." || s == "..":
		return fmt.Errorf("relative segment %q", s)
	case !utf8.ValidString(s):
		return fmt.Errorf("segment is not valid UTF-8")
	case strings.Contains(s, KeySeparator):
		return fmt.Errorf("segment %q contains %q", s, KeySeparator)
	case strings.ContainsAny(s, `/\`):
		return fmt.Errorf("segment %q contains a path separator", s)
	}
	return nil
}
