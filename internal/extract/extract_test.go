package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/nurturenote/pkg/models"
)

func TestStripFence(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no fence",
			input:    `  {"a": 1}  `,
			expected: `{"a": 1}`,
		},
		{
			name:     "json fence",
			input:    "```json\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "bare fence",
			input:    "```\n{\"a\": 1}\n```\n",
			expected: `{"a": 1}`,
		},
		{
			name:     "trailing chatter after closing fence",
			input:    "```json\n{\"a\": 1}\n```\nHope this helps!",
			expected: `{"a": 1}`,
		},
		{
			name:     "unterminated fence",
			input:    "```json\n{\"a\": 1}",
			expected: `{"a": 1}`,
		},
		{
			name:     "nested fences",
			input:    "```\n```\nX\n```\n```",
			expected: "X",
		},
		{
			name:     "fence without newline",
			input:    "```",
			expected: "",
		},
		{
			name:     "fence in the middle is kept",
			input:    "text ```code```",
			expected: "text ```code```",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripFence(tt.input))
		})
	}
}

func TestStripFence_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"plain",
		"```json\n{}\n```",
		"```\n```\nX\n```\n```",
		"``````",
		"```a\n```b\n```c\n```",
		"```\n  ```json\n[1]\n```  \n```",
		"\n\n```yaml\nkey: value\n",
	}

	for _, in := range inputs {
		once := StripFence(in)
		assert.Equal(t, once, StripFence(once), "input %q", in)
	}
}

func TestParseObject(t *testing.T) {
	obj, err := ParseObject("```json\n{\"maternal_feedback\": [\"ok\"], \"n\": 3}\n```")
	require.NoError(t, err)
	assert.Equal(t, []any{"ok"}, obj["maternal_feedback"])
	assert.Equal(t, float64(3), obj["n"])
}

func TestParseObject_Errors(t *testing.T) {
	_, err := ParseObject("not json at all")
	assert.Error(t, err)

	_, err = ParseObject(`["a", "b"]`)
	assert.ErrorIs(t, err, ErrNotObject)

	_, err = ParseObject("")
	assert.Error(t, err)
}

func TestAnnotations(t *testing.T) {
	body := []byte(`{
		"output": [
			{"type": "web_search_call", "id": "ws_1"},
			{
				"type": "message",
				"content": [
					{
						"type": "output_text",
						"text": "see sources",
						"annotations": [
							{"type": "url_citation", "url": "https://www.who.int/a", "title": "WHO"},
							{"type": "file_citation", "file_id": "file_1"},
							{"type": "url_citation", "url": "https://www.who.int/a", "title": "dup"},
							{"type": "url_citation", "source_url": "https://cdc.gov/b", "text": "CDC"}
						]
					},
					{
						"type": "output_text",
						"text": {"value": "nested", "annotations": [{"url": "https://aap.org/c"}]}
					}
				]
			}
		]
	}`)

	got := Annotations(body)
	assert.Equal(t, []models.Source{
		{URL: "https://www.who.int/a", Title: "WHO"},
		{URL: "https://cdc.gov/b", Title: "CDC"},
		{URL: "https://aap.org/c"},
	}, got)
}

func TestAnnotations_StructuralMismatch(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{"output": [`},
		{name: "no output", body: `{"id": "resp_1"}`},
		{name: "output is a string", body: `{"output": "hello"}`},
		{name: "content is an object", body: `{"output": [{"type": "message", "content": {"x": 1}}]}`},
		{name: "annotations is a string", body: `{"output": [{"type": "message", "content": [{"annotations": "x"}]}]}`},
		{name: "annotation is a scalar", body: `{"output": [{"type": "message", "content": [{"annotations": [1, "a", null]}]}]}`},
		{name: "url is not a string", body: `{"output": [{"type": "message", "content": [{"annotations": [{"url": 7}]}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Annotations([]byte(tt.body))
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}
