package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompose_OverridesAndSorts(t *testing.T) {
	out := Compose([]string{"B=2", "A=1"}, []string{"B=3", "C=x"})
	assert.Equal(t, []string{"A=1", "B=3", "C=x"}, out)
}

func TestCompose_ExpandsAgainstInherited(t *testing.T) {
	out := Compose([]string{"PATH=/usr/bin"}, []string{"PATH=/opt/tool/bin:${PATH}", "HOME_DIR=${HOME}"})
	assert.Equal(t, []string{"HOME_DIR=", "PATH=/opt/tool/bin:/usr/bin"}, out)
}

func TestCompose_LaterOverrideSeesEarlier(t *testing.T) {
	out := Compose(nil, []string{"ROOT=/srv", "DATA=${ROOT}/data"})
	assert.Equal(t, []string{"DATA=/srv/data", "ROOT=/srv"}, out)
}

func TestCompose_SkipsMalformedAndKeepsBareDollar(t *testing.T) {
	out := Compose([]string{"=bad", "noequals"}, []string{"PRICE=$5", "OPEN=${unterminated"})
	assert.Equal(t, []string{"OPEN=${unterminated", "PRICE=$5"}, out)
}

func TestFromOS_InheritsParent(t *testing.T) {
	t.Setenv("PROCSTREAM_ENV_TEST", "parent")
	out := FromOS([]string{"CHILD=${PROCSTREAM_ENV_TEST}-child"})
	assert.Contains(t, out, "CHILD=parent-child")
	assert.Contains(t, out, "PROCSTREAM_ENV_TEST=parent")
}
