package presentation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowmerak/presentation.go/lib/presentation"
)

func TestOriginPolicy_Resolve(t *testing.T) {
	tests := []struct {
		name   string
		opener string
		target string
		want   string
		denied bool
	}{
		{name: "relative path", opener: "https://example.com/app/", target: "slides.html", want: "https://example.com/app/slides.html"},
		{name: "same origin absolute", opener: "https://example.com/", target: "https://example.com/deck", want: "https://example.com/deck"},
		{name: "default port", opener: "https://example.com/", target: "https://example.com:443/deck", want: "https://example.com:443/deck"},
		{name: "host case", opener: "http://Example.com/", target: "http://example.COM/x", want: "http://example.COM/x"},
		{name: "other host", opener: "https://example.com/", target: "https://evil.test/", denied: true},
		{name: "other scheme", opener: "https://example.com/", target: "http://example.com/", denied: true},
		{name: "other port", opener: "http://localhost:8080/", target: "http://localhost:9090/", denied: true},
		{name: "local files", opener: "file:///android_asset/index.html", target: "file:///sdcard/deck.html", want: "file:///sdcard/deck.html"},
		{name: "web page opening a file", opener: "https://example.com/", target: "file:///etc/passwd", denied: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := presentation.NewOriginPolicy(tt.opener)
			require.NoError(t, err)

			got, failure := policy.Resolve(tt.target)
			if tt.denied {
				require.NotNil(t, failure)
				assert.Equal(t, presentation.SecurityError, failure.Name)
				return
			}
			require.Nil(t, failure)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewOriginPolicy_RequiresScheme(t *testing.T) {
	_, err := presentation.NewOriginPolicy("example.com")
	assert.Error(t, err)
}
