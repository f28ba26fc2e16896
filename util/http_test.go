package util

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogSafeUrl(t *testing.T) {
	r := httptest.NewRequest("POST", "/_media/v1/upload?filename=Jane%20Doe.png&access_token=abc&other=1", nil)
	safe := GetLogSafeUrl(r)
	assert.NotContains(t, safe, "Jane")
	assert.NotContains(t, safe, "abc")
	assert.Contains(t, safe, "other=1")
	assert.Contains(t, safe, "filename=redacted")
}
