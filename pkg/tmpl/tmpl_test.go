package tmpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name    string
		tmpl    string
		data    any
		want    string
		wantErr bool
	}{
		{
			name: "simple substitution",
			tmpl: "task {{ .ID }}: {{ .Title }}",
			data: map[string]string{"ID": "t1", "Title": "add parser"},
			want: "task t1: add parser",
		},
		{
			name: "shell quoting",
			tmpl: "run {{ shq .Prompt }}",
			data: map[string]string{"Prompt": "it's done"},
			want: `run 'it'\''s done'`,
		},
		{
			name: "join",
			tmpl: `{{ join .Args " " }}`,
			data: map[string][]string{"Args": {"a", "b", "c"}},
			want: "a b c",
		},
		{
			name: "bullets",
			tmpl: "{{ bullets .Items }}",
			data: map[string][]string{"Items": {"first", "second"}},
			want: "- first\n- second",
		},
		{
			name: "bullets empty",
			tmpl: "{{ bullets .Items }}",
			data: map[string][]string{"Items": {}},
			want: "",
		},
		{
			name: "indent",
			tmpl: `{{ indent "  " .Out }}`,
			data: map[string]string{"Out": "a\nb"},
			want: "  a\n  b",
		},
		{
			name:    "missing key errors",
			tmpl:    "{{ .Missing }}",
			data:    map[string]string{},
			wantErr: true,
		},
		{
			name:    "invalid syntax",
			tmpl:    "{{ .Unclosed",
			data:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.tmpl, tt.data)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("{{ .Task.Title }} with {{ bullets .Criteria }}"))
	assert.Error(t, Validate("{{ nosuchfunc . }}"))
	assert.Error(t, Validate("{{ .Unclosed"))
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "''"},
		{"plain", "'plain'"},
		{"has space", "'has space'"},
		{"it's", `'it'\''s'`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, shellQuote(tt.in))
	}
}
