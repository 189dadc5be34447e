package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"itp/internal/domain"
)

func TestBuildDependencyMap(t *testing.T) {
	fp := domain.WorkspaceFingerprint{
		"helpers.py": {
			Path:      "helpers.py",
			Functions: map[string]string{"helper": "h1", "normalize": "n1", "unused": "u1", "Repo::load": "l1"},
			Calls: map[string][]string{
				"helper":     {"normalize"},
				"normalize":  {"basename"},
				"Repo::load": {"helper"},
			},
		},
		"a_test.py": {
			Path:       "a_test.py",
			IsTestFile: true,
			Functions:  map[string]string{"test_helper": "t1", "TestRepo::test_load": "t2", "fixture": "f1"},
			Calls: map[string][]string{
				"test_helper":         {"helper", "len"},
				"TestRepo::test_load": {"load"},
				"fixture":             {"unused"},
			},
		},
	}

	deps := BuildDependencyMap(fp)

	helperTest := domain.TestID{File: "a_test.py", Name: "test_helper"}
	loadTest := domain.TestID{File: "a_test.py", Name: "TestRepo::test_load"}

	tests := []struct {
		function string
		expected []domain.TestID
	}{
		{"helper", []domain.TestID{loadTest, helperTest}},
		{"normalize", []domain.TestID{loadTest, helperTest}},
		{"Repo::load", []domain.TestID{loadTest}},
		{"unused", nil},
		{"len", nil},
	}

	for _, tt := range tests {
		t.Run(tt.function, func(t *testing.T) {
			assert.Equal(t, tt.expected, deps.TestsFor(tt.function))
		})
	}
}

func TestBuildDependencyMap_Cycle(t *testing.T) {
	fp := domain.WorkspaceFingerprint{
		"m.py": {
			Path:      "m.py",
			Functions: map[string]string{"ping": "p", "pong": "q"},
			Calls:     map[string][]string{"ping": {"pong"}, "pong": {"ping"}},
		},
		"test_m.py": {
			Path:       "test_m.py",
			IsTestFile: true,
			Functions:  map[string]string{"test_ping": "t"},
			Calls:      map[string][]string{"test_ping": {"ping"}},
		},
	}

	deps := BuildDependencyMap(fp)

	want := []domain.TestID{{File: "test_m.py", Name: "test_ping"}}
	assert.Equal(t, want, deps["ping"])
	assert.Equal(t, want, deps["pong"])
}
