package apierror

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusMapsKnownCodes(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, New(CodeChannelIgnored, "x").Status())
	assert.Equal(t, http.StatusUnauthorized, New(CodeUnauthorized, "x").Status())
	assert.Equal(t, http.StatusRequestTimeout, New(CodeRequestTimeout, "x").Status())
}

func TestStatusDefaultsToInternalServerErrorForUnknownCode(t *testing.T) {
	err := &Error{Code: Code("something_made_up")}
	assert.Equal(t, http.StatusInternalServerError, err.Status())
}

func TestErrorImplementsErrorInterface(t *testing.T) {
	var err error = New(CodeNotFound, "nope")
	assert.Equal(t, "nope", err.Error())
}
