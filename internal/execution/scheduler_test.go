package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"itp/internal/domain"
)

func TestFailuresFirstScheduler_Order(t *testing.T) {
	previous := domain.ResultTable{
		"a_test.py": {"test_ok": {Passed: true}, "test_bad": {Passed: false}},
		"b_test.py": {"test_p[x]": {Passed: false}, "test_p[y]": {Passed: true}},
	}
	s := NewFailuresFirstScheduler(previous)

	in := []domain.TestID{
		{File: "a_test.py", Name: "test_new"},
		{File: "a_test.py", Name: "test_ok"},
		{File: "b_test.py", Name: "test_p"},
		{File: "a_test.py", Name: "test_bad"},
	}
	got := s.Order(in)

	assert.Equal(t, []domain.TestID{
		{File: "b_test.py", Name: "test_p"},
		{File: "a_test.py", Name: "test_bad"},
		{File: "a_test.py", Name: "test_new"},
		{File: "a_test.py", Name: "test_ok"},
	}, got)
	assert.Equal(t, "test_new", in[0].Name, "input is not reordered in place")
}
