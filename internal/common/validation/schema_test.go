package validation

import (
	"errors"
	"testing"

	"github-insight/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator(registry.Default())
	require.NoError(t, err)
	return v
}

func TestValidator_ValidateJSON(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		name        string
		taskType    string
		doc         string
		valid       bool
		errorFields []string
	}{
		{
			name:     "valid question",
			taskType: "answer-question",
			doc:      `{"message":"What languages?","username":"octocat"}`,
			valid:    true,
		},
		{
			name:     "precomputed intents allowed",
			taskType: "answer-question",
			doc:      `{"message":"What languages?","username":"octocat","intents":["repo_languages"]}`,
			valid:    true,
		},
		{
			name:        "missing username",
			taskType:    "answer-question",
			doc:         `{"message":"What languages?"}`,
			errorFields: []string{"username"},
		},
		{
			name:        "missing both",
			taskType:    "detect-intents",
			doc:         `{}`,
			errorFields: []string{"message", "username"},
		},
		{
			name:        "blank message",
			taskType:    "answer-question",
			doc:         `{"message":"   ","username":"octocat"}`,
			errorFields: []string{"message"},
		},
		{
			name:        "wrong type",
			taskType:    "fetch-github-data",
			doc:         `{"username":"octocat","intents":"user_bio"}`,
			errorFields: []string{"intents"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := v.ValidateJSON(tt.taskType, []byte(tt.doc))
			require.NoError(t, err)

			assert.Equal(t, tt.valid, result.Valid, result.GetErrorMessages())
			for _, f := range tt.errorFields {
				assert.True(t, result.HasErrors(f), "expected error on %s, got %v", f, result.GetErrorMessages())
			}
		})
	}
}

func TestValidator_ValidateInput(t *testing.T) {
	v := newTestValidator(t)

	result, err := v.ValidateInput("generate-response", map[string]interface{}{
		"message":  "hi",
		"username": "octocat",
		"intents":  []string{"user_bio"},
	})

	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestValidator_UnknownTaskType(t *testing.T) {
	v := newTestValidator(t)

	_, err := v.ValidateJSON("send-email", []byte(`{}`))

	assert.True(t, errors.Is(err, ErrNoSchema))
}

func TestValidator_MalformedDocument(t *testing.T) {
	v := newTestValidator(t)

	_, err := v.ValidateJSON("answer-question", []byte(`{not json`))

	assert.Error(t, err)
}

func TestNewValidator_BadSchema(t *testing.T) {
	reg := &registry.ActivityRegistry{Activities: []registry.Activity{
		{TaskType: "broken", InputSchema: map[string]interface{}{"type": 12}},
	}}

	_, err := NewValidator(reg)

	assert.Error(t, err)
}
