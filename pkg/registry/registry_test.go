package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_ListsPipelineTasks(t *testing.T) {
	reg := Default()

	assert.Equal(t, []string{"detect-intents", "fetch-github-data", "generate-response", "answer-question"}, reg.TaskTypes())

	a, ok := reg.Find("answer-question")
	require.True(t, ok)
	assert.Equal(t, "github.question.answer", a.ID)
	assert.NotEmpty(t, a.InputSchema)

	_, ok = reg.Find("send-email")
	assert.False(t, ok)
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"2.0.0","activities":[{"id":"a.b.c","taskType":"x"}]}`), 0o600))

	reg, err := LoadRegistry(path)

	require.NoError(t, err)
	assert.Equal(t, "2.0.0", reg.Version)
	assert.Equal(t, []string{"x"}, reg.TaskTypes())
}

func TestLoadRegistry_Errors(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = Parse([]byte(`[`))
	assert.Error(t, err)
}
