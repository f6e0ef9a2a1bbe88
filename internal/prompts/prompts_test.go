package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuestions(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{
			name: "plain json",
			raw:  `{"questions": ["a", "b", "c"]}`,
			want: []string{"a", "b", "c"},
		},
		{
			name: "json fenced",
			raw:  "```json\n{\"questions\": [\"a\"]}\n```",
			want: []string{"a"},
		},
		{
			name: "bare fence",
			raw:  "```\n{\"questions\": [\"a\"]}\n```",
			want: []string{"a"},
		},
		{
			name: "surrounding whitespace",
			raw:  "  \n{\"questions\": [\"a\"]}\n  ",
			want: []string{"a"},
		},
		{
			name:    "conversational text",
			raw:     "Here are your questions: 1. Who?",
			wantErr: true,
		},
		{
			name:    "empty list",
			raw:     `{"questions": []}`,
			wantErr: true,
		},
		{
			name:    "wrong shape",
			raw:     `["a", "b"]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseQuestions(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildUserContent(t *testing.T) {
	content := buildUserContent(`a "quoted" idea`, "A: answers here")

	assert.Contains(t, content, "**Initial Prompt:**")
	assert.Contains(t, content, `a \"quoted\" idea`)
	assert.Contains(t, content, "**User's Answers to Clarifying Questions:**")
	assert.Contains(t, content, "A: answers here")
}
