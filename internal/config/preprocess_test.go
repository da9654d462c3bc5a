package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
		wantErr  string
	}{
		{
			name:     "simple environment variable substitution",
			input:    `base_url = "{{ .ENV.APIACCESS_TEST_URL }}"`,
			envVars:  map[string]string{"APIACCESS_TEST_URL": "https://api.example.com"},
			expected: `base_url = "https://api.example.com"`,
		},
		{
			name:     "special characters",
			input:    `password = "{{ .ENV.APIACCESS_TEST_PW }}"`,
			envVars:  map[string]string{"APIACCESS_TEST_PW": "p@ssw0rd!@#"},
			expected: `password = "p@ssw0rd!@#"`,
		},
		{
			name:     "equals sign in value",
			input:    `v = "{{ .ENV.APIACCESS_TEST_EQ }}"`,
			envVars:  map[string]string{"APIACCESS_TEST_EQ": "key=value"},
			expected: `v = "key=value"`,
		},
		{
			name:     "no template variables",
			input:    "[api]\nbase_url = \"x\"",
			expected: "[api]\nbase_url = \"x\"",
		},
		{
			name:    "missing environment variable",
			input:   `v = "{{ .ENV.APIACCESS_TEST_MISSING }}"`,
			wantErr: "missing environment variable: APIACCESS_TEST_MISSING",
		},
		{
			name:    "invalid template syntax",
			input:   `v = "{{ .ENV.VAR }"`,
			wantErr: "unexpected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			result, err := Preprocess([]byte(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestPreprocessWithEnvFiles(t *testing.T) {
	dir := t.TempDir()
	near := filepath.Join(dir, "near.env")
	far := filepath.Join(dir, "far.env")
	require.NoError(t, os.WriteFile(near, []byte("APIACCESS_T_A=near\nAPIACCESS_T_B=near_b"), 0600))
	require.NoError(t, os.WriteFile(far, []byte("APIACCESS_T_A=far\nAPIACCESS_T_C=far_c"), 0600))
	t.Setenv("APIACCESS_T_B", "from_environment")

	input := "a={{ .ENV.APIACCESS_T_A }} b={{ .ENV.APIACCESS_T_B }} c={{ .ENV.APIACCESS_T_C }}"
	result, err := Preprocess([]byte(input), near, filepath.Join(dir, "missing.env"), far)
	require.NoError(t, err)
	assert.Equal(t, "a=near b=from_environment c=far_c", string(result))

	_, ok := os.LookupEnv("APIACCESS_T_A")
	assert.False(t, ok, ".env values do not leak into the process environment")
}
