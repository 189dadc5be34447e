package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"itp/internal/domain"
)

func priorState() *domain.State {
	return &domain.State{
		Results:     domain.ResultTable{},
		Coverage:    domain.NewCoverageReport(),
		Fingerprint: domain.WorkspaceFingerprint{
			"helpers.py": {Path: "helpers.py", Digest: "h", Functions: map[string]string{"helper": "1"}},
		},
	}
}

func changedDiff(path string, isTest bool, names ...string) domain.FingerprintDiff {
	diff := domain.NewFingerprintDiff()
	for _, name := range names {
		diff.Modified.Add(domain.FileFingerprint{Path: path, Digest: "new", IsTestFile: isTest}, name, "d-"+name)
	}
	return diff
}

func TestSelect_Bootstrap(t *testing.T) {
	diff := changedDiff("helpers.py", false, "helper")

	tests := []struct {
		name      string
		prior     *domain.State
		selective bool
	}{
		{"no prior state", nil, true},
		{"empty fingerprint", &domain.State{Results: domain.ResultTable{}, Coverage: domain.NewCoverageReport()}, true},
		{"no results", &domain.State{Coverage: domain.NewCoverageReport(), Fingerprint: priorState().Fingerprint}, true},
		{"no coverage", &domain.State{Results: domain.ResultTable{}, Fingerprint: priorState().Fingerprint}, true},
		{"selective disabled", priorState(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := Select(tt.prior, diff, domain.DependencyMap{}, tt.selective)
			assert.True(t, sel.All)
		})
	}
}

func TestSelect_DependencyMap(t *testing.T) {
	helperTest := domain.TestID{File: "a_test.py", Name: "test_helper"}
	deps := domain.DependencyMap{"helper": {helperTest}}

	sel := Select(priorState(), changedDiff("helpers.py", false, "helper"), deps, true)

	assert.False(t, sel.All)
	assert.Equal(t, []domain.TestID{helperTest}, sel.Tests)
}

func TestSelect_ChangedTestsAndFiltering(t *testing.T) {
	diff := changedDiff("test_api.py", true, "test_b", "TestApi::test_a", "fixture_db", "TestApi::helper")
	diff.Added.Add(domain.FileFingerprint{Path: "models.py"}, "Model::save", "s")
	deps := domain.DependencyMap{
		"save": {
			{File: "test_api.py", Name: "test_b"},
			{File: "test_models.py", Name: "test_save"},
		},
	}

	sel := Select(priorState(), diff, deps, true)

	assert.Equal(t, []domain.TestID{
		{File: "test_api.py", Name: "TestApi::test_a"},
		{File: "test_api.py", Name: "test_b"},
		{File: "test_models.py", Name: "test_save"},
	}, sel.Tests)
}

func TestSelect_HelperInTestFile(t *testing.T) {
	createUser := domain.TestID{File: "test_users.py", Name: "test_create"}
	deps := domain.DependencyMap{"_make_user": {createUser}}

	sel := Select(priorState(), changedDiff("test_users.py", true, "_make_user"), deps, true)

	assert.Equal(t, []domain.TestID{createUser}, sel.Tests)
}

func TestSelect_NoChanges(t *testing.T) {
	sel := Select(priorState(), domain.NewFingerprintDiff(), domain.DependencyMap{}, true)
	assert.True(t, sel.Empty())
}

func TestRemoveDeletedTests(t *testing.T) {
	table := domain.ResultTable{
		"a_test.py": {
			"test_x[1]":  {Passed: true},
			"test_x[2]":  {Passed: false},
			"test_xy":    {Passed: true},
			"test_other": {Passed: true},
		},
		"b_test.py": {
			"test_x": {Passed: true},
		},
		"gone_test.py": {
			"TestGone::test_a": {Passed: true},
		},
	}

	diff := domain.NewFingerprintDiff()
	diff.Deleted.Add(domain.FileFingerprint{Path: "a_test.py", IsTestFile: true}, "test_x", "d")
	diff.Deleted.Add(domain.FileFingerprint{Path: "gone_test.py", IsTestFile: true}, "TestGone::test_a", "d")
	diff.Deleted.Add(domain.FileFingerprint{Path: "b.py"}, "test_x", "d")

	RemoveDeletedTests(table, diff)

	assert.Equal(t, domain.ResultTable{
		"a_test.py": {
			"test_xy":    {Passed: true},
			"test_other": {Passed: true},
		},
		"b_test.py": {
			"test_x": {Passed: true},
		},
	}, table)
}

func TestFailed(t *testing.T) {
	table := domain.ResultTable{
		"b_test.py": {"test_b": {Passed: false}, "test_ok": {Passed: true}},
		"a_test.py": {"test_a[1]": {Passed: false}},
	}

	sel := Failed(table)

	assert.Equal(t, []domain.TestID{
		{File: "a_test.py", Name: "test_a[1]"},
		{File: "b_test.py", Name: "test_b"},
	}, sel.Tests)
	assert.True(t, Failed(domain.ResultTable{}).Empty())
}

func TestFilter(t *testing.T) {
	sel := domain.Selection{Tests: []domain.TestID{
		{File: "tests/api/test_user.py", Name: "test_login"},
		{File: "tests/unit/test_user.py", Name: "test_model"},
	}}

	assert.Len(t, Filter(sel, "tests/api/**").Tests, 1)
	assert.Equal(t, sel, Filter(sel, ""))
	assert.True(t, Filter(domain.SelectAll(), "tests/api/**").All)
}
