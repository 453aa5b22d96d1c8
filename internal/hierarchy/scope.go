package hierarchy

import (
	"fmt"
	"strings"
)

// Scope is the caller's requested hierarchy filter. Company is required;
// an employee scope also names its department.
type Scope struct {
	Company    string `json:"company"`
	Department string `json:"department,omitempty"`
	Employee   string `json:"employee,omitempty"`
}

// NormalizeScope trims surrounding whitespace from every field.
func NormalizeScope(s Scope) Scope {
	return Scope{
		Company:    strings.TrimSpace(s.Company),
		Department: strings.TrimSpace(s.Department),
		Employee:   strings.TrimSpace(s.Employee),
	}
}

// Validate reports ErrInvalidScope for scopes that cannot be planned.
func (s Scope) Validate() error {
	if s.Company == "" {
		return fmt.Errorf("%w: company is required", ErrInvalidScope)
	}
	if s.Employee != "" && s.Department == "" {
		return fmt.Errorf("%w: employee %q requires a department", ErrInvalidScope, s.Employee)
	}
	for _, f := range []string{s.Company, s.Department, s.Employee} {
		if f == "" {
			continue
		}
		if err := validSegment(f); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidScope, err)
		}
	}
	return nil
}

// Level returns the most specific level the scope names.
func (s Scope) Level() Level {
	switch {
	case s.Employee != "":
		return LevelEmployee
	case s.Department != "":
		return LevelDepartment
	default:
		return LevelCompany
	}
}

// HierarchyKey returns the key of the most specific node the scope names.
func (s Scope) HierarchyKey() string {
	return Metadata{Company: s.Company, Department: s.Department, Employee: s.Employee}.HierarchyKey()
}

// Target builds the search target for one level of the scope.
func (s Scope) Target(level Level) (Target, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	switch level {
	case LevelGeneral:
		return GeneralTarget{}, nil
	case LevelCompany:
		return CompanyTarget{Company: s.Company}, nil
	case LevelDepartment:
		if s.Department == "" {
			return nil, fmt.Errorf("%w: department level needs a department", ErrInvalidScope)
		}
		return DepartmentTarget{Company: s.Company, Department: s.Department}, nil
	case LevelEmployee:
		if s.Employee == "" {
			return nil, fmt.Errorf("%w: employee level needs an employee", ErrInvalidScope)
		}
		return EmployeeTarget{Company: s.Company, Department: s.Department, Employee: s.Employee}, nil
	}
	return nil, fmt.Errorf("%w: unknown level %d", ErrInvalidScope, uint8(level))
}

// LevelPlan lists the levels a retrieval queries, most specific first.
type LevelPlan []Level

// Plan derives the level plan for a scope. The plan starts at the most
// specific level the scope names and always ends with general.
func Plan(s Scope) (LevelPlan, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	switch s.Level() {
	case LevelEmployee:
		return LevelPlan{LevelEmployee, LevelDepartment, LevelCompany, LevelGeneral}, nil
	case LevelDepartment:
		return LevelPlan{LevelDepartment, LevelCompany, LevelGeneral}, nil
	default:
		return LevelPlan{LevelCompany, LevelGeneral}, nil
	}
}

func (p LevelPlan) String() string {
	names := make([]string, len(p))
	for i, l := range p {
		names[i] = l.String()
	}
	return "[" + strings.Join(names, " ") + "]"
}

// Target is a search at one level of the hierarchy. The variants are
// GeneralTarget, CompanyTarget, DepartmentTarget and EmployeeTarget.
type Target interface {
	Level() Level
	Partition() Partition
	// Filter is the exact-match metadata filter selecting this level only.
	Filter() map[string]string
	sealed()
}

// GeneralTarget searches the shared general partition.
type GeneralTarget struct{}

func (GeneralTarget) Level() Level         { return LevelGeneral }
func (GeneralTarget) Partition() Partition { return GeneralPartition }
func (GeneralTarget) Filter() map[string]string {
	return map[string]string{KeyLevel: LevelGeneral.String()}
}
func (GeneralTarget) sealed() {}

// CompanyTarget searches company-level chunks.
type CompanyTarget struct {
	Company string
}

func (t CompanyTarget) Level() Level         { return LevelCompany }
func (t CompanyTarget) Partition() Partition { return CompanyPartition(t.Company) }
func (t CompanyTarget) Filter() map[string]string {
	return map[string]string{
		KeyLevel:   LevelCompany.String(),
		KeyCompany: t.Company,
	}
}
func (CompanyTarget) sealed() {}

// DepartmentTarget searches one department's chunks.
type DepartmentTarget struct {
	Company    string
	Department string
}

func (t DepartmentTarget) Level() Level         { return LevelDepartment }
func (t DepartmentTarget) Partition() Partition { return CompanyPartition(t.Company) }
func (t DepartmentTarget) Filter() map[string]string {
	return map[string]string{
		KeyLevel:      LevelDepartment.String(),
		KeyCompany:    t.Company,
		KeyDepartment: t.Department,
	}
}
func (DepartmentTarget) sealed() {}

// EmployeeTarget searches one employee's chunks.
type EmployeeTarget struct {
	Company    string
	Department string
	Employee   string
}

func (t EmployeeTarget) Level() Level         { return LevelEmployee }
func (t EmployeeTarget) Partition() Partition { return CompanyPartition(t.Company) }
func (t EmployeeTarget) Filter() map[string]string {
	return map[string]string{
		KeyLevel:      LevelEmployee.String(),
		KeyCompany:    t.Company,
		KeyDepartment: t.Department,
		KeyEmployee:   t.Employee,
	}
}
func (EmployeeTarget) sealed() {}
