package hierarchy_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name    string
		scope   hierarchy.Scope
		want    hierarchy.LevelPlan
		wantErr bool
	}{
		{
			name:  "employee scope",
			scope: hierarchy.Scope{Company: "c1", Department: "d1", Employee: "e1"},
			want: hierarchy.LevelPlan{
				hierarchy.LevelEmployee, hierarchy.LevelDepartment, hierarchy.LevelCompany, hierarchy.LevelGeneral,
			},
		},
		{
			name:  "department scope",
			scope: hierarchy.Scope{Company: "c1", Department: "d1"},
			want:  hierarchy.LevelPlan{hierarchy.LevelDepartment, hierarchy.LevelCompany, hierarchy.LevelGeneral},
		},
		{
			name:  "company scope",
			scope: hierarchy.Scope{Company: "c1"},
			want:  hierarchy.LevelPlan{hierarchy.LevelCompany, hierarchy.LevelGeneral},
		},
		{
			name:    "empty company",
			scope:   hierarchy.Scope{Company: ""},
			wantErr: true,
		},
		{
			name:    "department without company",
			scope:   hierarchy.Scope{Department: "d1"},
			wantErr: true,
		},
		{
			name:    "employee without department",
			scope:   hierarchy.Scope{Company: "c1", Employee: "e1"},
			wantErr: true,
		},
		{
			name:    "separator in company",
			scope:   hierarchy.Scope{Company: "c1|c2"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := hierarchy.Plan(tt.scope)
			if tt.wantErr {
				require.ErrorIs(t, err, hierarchy.ErrInvalidScope)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, hierarchy.LevelGeneral, got[len(got)-1])
		})
	}
}

func TestNormalizeScope(t *testing.T) {
	s := hierarchy.NormalizeScope(hierarchy.Scope{Company: " c1 ", Department: "\td1", Employee: "  "})
	assert.Equal(t, hierarchy.Scope{Company: "c1", Department: "d1"}, s)

	_, err := hierarchy.Plan(hierarchy.NormalizeScope(hierarchy.Scope{Company: "   "}))
	require.ErrorIs(t, err, hierarchy.ErrInvalidScope)
}

func TestTargetFilters(t *testing.T) {
	scope := hierarchy.Scope{Company: "c1", Department: "d1", Employee: "e1"}

	tests := []struct {
		level     hierarchy.Level
		partition hierarchy.Partition
		filter    map[string]string
	}{
		{
			level:     hierarchy.LevelEmployee,
			partition: hierarchy.CompanyPartition("c1"),
			filter:    map[string]string{"level": "employee", "company": "c1", "department": "d1", "employee": "e1"},
		},
		{
			level:     hierarchy.LevelDepartment,
			partition: hierarchy.CompanyPartition("c1"),
			filter:    map[string]string{"level": "department", "company": "c1", "department": "d1"},
		},
		{
			level:     hierarchy.LevelCompany,
			partition: hierarchy.CompanyPartition("c1"),
			filter:    map[string]string{"level": "company", "company": "c1"},
		},
		{
			level:     hierarchy.LevelGeneral,
			partition: hierarchy.GeneralPartition,
			filter:    map[string]string{"level": "general"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			target, err := scope.Target(tt.level)
			require.NoError(t, err)
			assert.Equal(t, tt.level, target.Level())
			assert.Equal(t, tt.partition, target.Partition())
			assert.Equal(t, tt.filter, target.Filter())
		})
	}

	_, err := hierarchy.Scope{Company: "c1"}.Target(hierarchy.LevelDepartment)
	require.ErrorIs(t, err, hierarchy.ErrInvalidScope)
}

// Every stored chunk matches exactly one of the filters of a plan.
func TestTargetFilters_LevelPartition(t *testing.T) {
	scope := hierarchy.Scope{Company: "c1", Department: "d1", Employee: "e1"}
	plan, err := hierarchy.Plan(scope)
	require.NoError(t, err)

	chunks := []hierarchy.Metadata{
		{Level: hierarchy.LevelGeneral},
		{Company: "c1", Level: hierarchy.LevelCompany},
		{Company: "c1", Department: "d1", Level: hierarchy.LevelDepartment},
		{Company: "c1", Department: "d1", Employee: "e1", Level: hierarchy.LevelEmployee},
	}

	for _, m := range chunks {
		stored := m.Map()
		matches := 0
		for _, level := range plan {
			target, err := scope.Target(level)
			require.NoError(t, err)
			if matchesFilter(stored, target.Filter()) {
				matches++
			}
		}
		assert.Equal(t, 1, matches, "chunk %s", m.HierarchyKey())
	}
}

func matchesFilter(stored, filter map[string]string) bool {
	for k, v := range filter {
		if stored[k] != v {
			return false
		}
	}
	return true
}

func TestMetadata(t *testing.T) {
	tests := []struct {
		name       string
		company    string
		department string
		employee   string
		wantLevel  hierarchy.Level
		wantKey    string
		wantErr    bool
	}{
		{"general", "", "", "", hierarchy.LevelGeneral, "general", false},
		{"company", "c1", "", "", hierarchy.LevelCompany, "c1", false},
		{"department", "c1", "d1", "", hierarchy.LevelDepartment, "c1|d1", false},
		{"employee", "c1", "d1", "e1", hierarchy.LevelEmployee, "c1|d1|e1", false},
		{"employee without department", "c1", "", "e1", 0, "", true},
		{"department without company", "", "d1", "", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := hierarchy.NewMetadata(tt.company, tt.department, tt.employee)
			if tt.wantErr {
				require.ErrorIs(t, err, hierarchy.ErrInvalidMetadata)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, m.Level)
			assert.Equal(t, tt.wantKey, m.HierarchyKey())

			parsed, err := hierarchy.MetadataFromMap(m.Map())
			require.NoError(t, err)
			assert.Equal(t, m, parsed)
		})
	}
}

func TestMetadata_ValidateRejectsInconsistentLevel(t *testing.T) {
	bad := []hierarchy.Metadata{
		{Company: "c1", Level: hierarchy.LevelGeneral},
		{Company: "c1", Department: "d1", Level: hierarchy.LevelCompany},
		{Company: "c1", Level: hierarchy.LevelEmployee},
		{Level: hierarchy.LevelCompany},
		{Company: "c1"},
	}
	for _, m := range bad {
		assert.ErrorIs(t, m.Validate(), hierarchy.ErrInvalidMetadata, "%+v", m)
	}
}

func TestMetadata_MapOmitsEmptyFields(t *testing.T) {
	m := hierarchy.Metadata{Company: "c1", Level: hierarchy.LevelCompany}
	assert.Equal(t, map[string]string{
		"company":       "c1",
		"level":         "company",
		"hierarchy_key": "c1",
	}, m.Map())
}

func TestLevel_JSON(t *testing.T) {
	b, err := json.Marshal(hierarchy.Metadata{Company: "c1", Department: "d1", Level: hierarchy.LevelDepartment})
	require.NoError(t, err)
	assert.JSONEq(t, `{"company":"c1","department":"d1","level":"department"}`, string(b))

	var m hierarchy.Metadata
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, hierarchy.LevelDepartment, m.Level)

	require.Error(t, json.Unmarshal([]byte(`{"level":"team"}`), &m))

	b, err = json.Marshal(hierarchy.Metadata{})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"level":""`)
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, hierarchy.Level(0), m.Level)

	_, err = hierarchy.Level(9).MarshalText()
	require.Error(t, err)
}

func TestPartition(t *testing.T) {
	c1 := hierarchy.CompanyPartition("c1")

	assert.NoError(t, c1.Admits(hierarchy.Metadata{Company: "c1", Level: hierarchy.LevelCompany}))
	assert.NoError(t, c1.Admits(hierarchy.Metadata{Company: "c1", Department: "d", Employee: "e", Level: hierarchy.LevelEmployee}))
	assert.Error(t, c1.Admits(hierarchy.Metadata{Company: "c2", Level: hierarchy.LevelCompany}))
	assert.Error(t, c1.Admits(hierarchy.Metadata{Level: hierarchy.LevelGeneral}))

	assert.NoError(t, hierarchy.GeneralPartition.Admits(hierarchy.Metadata{Level: hierarchy.LevelGeneral}))
	assert.Error(t, hierarchy.GeneralPartition.Admits(hierarchy.Metadata{Company: "c1", Level: hierarchy.LevelCompany}))

	for _, p := range []hierarchy.Partition{hierarchy.GeneralPartition, c1, hierarchy.CompanyPartition("Acme Corp, Ltd.")} {
		name := p.Name()
		assert.Regexp(t, `^[a-z0-9_]+$`, name)
		parsed, err := hierarchy.ParsePartitionName(name)
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}

	_, err := hierarchy.ParsePartitionName("other_collection")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	root := filepath.Join(t.TempDir(), "kb")
	c := hierarchy.NewClassifier(root)

	tests := []struct {
		name  string
		path  string
		want  hierarchy.Metadata
		extra []string
	}{
		{
			name: "company document",
			path: "c1/policy.md",
			want: hierarchy.Metadata{Company: "c1", Level: hierarchy.LevelCompany},
		},
		{
			name: "department document",
			path: "c1/d1/guide.md",
			want: hierarchy.Metadata{Company: "c1", Department: "d1", Level: hierarchy.LevelDepartment},
		},
		{
			name: "employee document",
			path: "c1/d1/e1/notes.md",
			want: hierarchy.Metadata{Company: "c1", Department: "d1", Employee: "e1", Level: hierarchy.LevelEmployee},
		},
		{
			name:  "deeper than employee",
			path:  "c1/d1/e1/2024/q3/notes.md",
			want:  hierarchy.Metadata{Company: "c1", Department: "d1", Employee: "e1", Level: hierarchy.LevelEmployee},
			extra: []string{"2024", "q3"},
		},
		{
			name: "general document",
			path: "general/overview.md",
			want: hierarchy.Metadata{Level: hierarchy.LevelGeneral},
		},
		{
			name:  "nested general document",
			path:  "general/hr/benefits.md",
			want:  hierarchy.Metadata{Level: hierarchy.LevelGeneral},
			extra: []string{"hr"},
		},
		{
			name: "absolute path under root",
			path: filepath.Join(root, "c2", "d9", "x.md"),
			want: hierarchy.Metadata{Company: "c2", Department: "d9", Level: hierarchy.LevelDepartment},
		},
		{
			name: "uncleaned relative path",
			path: "c1/./d1/../d2/guide.md",
			want: hierarchy.Metadata{Company: "c1", Department: "d2", Level: hierarchy.LevelDepartment},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Classify(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Metadata)
			assert.Equal(t, tt.extra, got.Extra)
			assert.NoError(t, got.Validate())
		})
	}
}

func TestClassify_Malformed(t *testing.T) {
	root := filepath.Join(t.TempDir(), "kb")
	c := hierarchy.NewClassifier(root)

	paths := []string{
		"../outside.md",
		"c1/../../outside.md",
		filepath.Join(filepath.Dir(root), "sibling", "x.md"),
		"readme.md",
		".",
		"c1|c2/policy.md",
	}
	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			_, err := c.Classify(p)
			require.ErrorIs(t, err, hierarchy.ErrMalformedPath)
		})
	}
}

func TestClassify_CustomGeneralDirs(t *testing.T) {
	c := hierarchy.NewClassifier("/kb", "shared", "common")

	got, err := c.Classify("common/handbook.md")
	require.NoError(t, err)
	assert.Equal(t, hierarchy.LevelGeneral, got.Level)

	// "general" is an ordinary company name once other areas are configured.
	got, err = c.Classify("general/handbook.md")
	require.NoError(t, err)
	assert.Equal(t, hierarchy.LevelCompany, got.Level)
	assert.Equal(t, "general", got.Company)
}

func TestClassify_Deterministic(t *testing.T) {
	c := hierarchy.NewClassifier("/kb")
	a, err := c.Classify("c1/d1/e1/notes.md")
	require.NoError(t, err)
	b, err := c.Classify("c1/d1/e1/notes.md")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "c1|d1|e1", a.HierarchyKey())
	assert.Equal(t, "c1/d1/e1/notes.md", a.Path)
}
