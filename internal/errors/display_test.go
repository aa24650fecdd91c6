package errors

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayError(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	tests := []struct {
		name     string
		err      error
		contains []string
	}{
		{
			name: "Lookup status error",
			err:  LookupStatusError(ServiceViaCEP, 503),
			contains: []string{
				"failed to look up postal code",
				"HTTP 503",
				"try again later",
			},
		},
		{
			name: "Invalid input",
			err: InvalidInput(ServiceViaCEP, "postal code must have 8 digits").
				WithSolutions("Type the CEP as 01310-100 or 01310100"),
			contains: []string{
				"postal code must have 8 digits",
				"01310-100",
			},
		},
		{
			name:     "Plain error",
			err:      fmt.Errorf("boom"),
			contains: []string{"Error: boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			DisplayError(&buf, tt.err)

			for _, expected := range tt.contains {
				assert.Contains(t, buf.String(), expected, "Output should contain: %s", expected)
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "Invalid input",
			err:      InvalidInput(ServiceNominatim, "query too short"),
			expected: 64,
		},
		{
			name:     "Configuration Error",
			err:      StorageBackendError("s3", fmt.Errorf("no bucket")),
			expected: 78,
		},
		{
			name:     "Network Error",
			err:      LookupTransportError(ServiceNominatim, fmt.Errorf("connection refused")),
			expected: 69,
		},
		{
			name:     "Wrapped network error",
			err:      fmt.Errorf("geocode: %w", LookupStatusError(ServiceNominatim, 500)),
			expected: 69,
		},
		{
			name:     "Generic Error",
			err:      fmt.Errorf("some generic error"),
			expected: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetExitCode(tt.err))
		})
	}
}

func TestFormatErrorWithContext(t *testing.T) {
	err := BackendCredentialsError(fmt.Errorf("no credentials found"))

	context := map[string]string{
		"Region": "sa-east-1",
		"Table":  "acessivel",
	}

	output := FormatErrorWithContext(err, context)

	assert.Contains(t, output, "document store credentials are not valid")
	assert.Contains(t, output, "Type: Configuration/Backend")
	assert.Contains(t, output, "Context:")
	assert.Contains(t, output, "Region: sa-east-1")
	assert.Contains(t, output, "1. export AWS_PROFILE=your-profile")
}

func TestUnwrapAndType(t *testing.T) {
	root := fmt.Errorf("dial tcp: connection refused")
	err := Network(ServiceViaCEP, "failed to look up postal code", root)

	assert.True(t, stderrors.Is(err, root))
	assert.True(t, IsType(err, ErrorTypeNetwork))
	assert.False(t, IsType(err, ErrorTypeInvalidInput))
	assert.False(t, IsType(nil, ErrorTypeNetwork))
	assert.Equal(t, "failed to look up postal code: dial tcp: connection refused", err.Error())
	assert.Equal(t, "[Network/ViaCEP] failed to look up postal code: dial tcp: connection refused (solutions: Check your internet connection; Retry the lookup)", fmt.Sprintf("%+v", err))
}
