package hierarchy

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Partition identifies one isolated collection: a company's, or the shared
// general collection. The zero value is the general partition.
type Partition struct {
	company string
}

// GeneralPartition is shared by all companies.
var GeneralPartition = Partition{}

// CompanyPartition returns the partition owned by company.
func CompanyPartition(company string) Partition {
	return Partition{company: company}
}

// Company returns the owning company, empty for the general partition.
func (p Partition) Company() string { return p.company }

// IsGeneral reports whether p is the shared general partition.
func (p Partition) IsGeneral() bool { return p.company == "" }

func (p Partition) String() string {
	if p.IsGeneral() {
		return "general"
	}
	return "company:" + p.company
}

// Admits checks that a chunk tagged m may be stored in p.
func (p Partition) Admits(m Metadata) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if p.IsGeneral() {
		if m.Level != LevelGeneral {
			return fmt.Errorf("%s chunk for company %q in general partition", m.Level, m.Company)
		}
		return nil
	}
	if m.Level == LevelGeneral {
		return fmt.Errorf("general chunk in partition %s", p)
	}
	if m.Company != p.company {
		return fmt.Errorf("chunk for company %q in partition %s", m.Company, p)
	}
	return nil
}

// partitionNamePrefix scopes backend collection names.
const partitionNamePrefix = "hc_"

// Name returns a backend-safe collection name for p: lowercase letters,
// digits and underscores only. Company names are hex encoded so the
// mapping is reversible.
func (p Partition) Name() string {
	if p.IsGeneral() {
		return partitionNamePrefix + "general"
	}
	return partitionNamePrefix + "c_" + hex.EncodeToString([]byte(p.company))
}

// ParsePartitionName reverses Name.
func ParsePartitionName(name string) (Partition, error) {
	rest, ok := strings.CutPrefix(name, partitionNamePrefix)
	if !ok {
		return Partition{}, fmt.Errorf("not a partition name: %q", name)
	}
	if rest == "general" {
		return GeneralPartition, nil
	}
	encoded, ok := strings.CutPrefix(rest, "c_")
	if !ok || encoded == "" {
		return Partition{}, fmt.Errorf("not a partition name: %q", name)
	}
	company, err := hex.DecodeString(encoded)
	if err != nil {
		return Partition{}, fmt.Errorf("not a partition name: %q: %w", name, err)
	}
	return CompanyPartition(string(company)), nil
}
