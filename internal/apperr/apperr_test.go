package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	t.Run("KindOfWrapped", func(t *testing.T) {
		err := fmt.Errorf("start monitor: %w", Validation("mode %q is invalid", "nope"))
		assert.Equal(t, KindValidation, KindOf(err))
		assert.Contains(t, err.Error(), `mode "nope" is invalid`)
	})

	t.Run("KindOfPlain", func(t *testing.T) {
		assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	})

	t.Run("IsMatchesByKind", func(t *testing.T) {
		err := fmt.Errorf("lookup: %w", NotFound("monitor", "abc"))
		assert.True(t, errors.Is(err, &Error{Kind: KindNotFound}))
		assert.False(t, errors.Is(err, &Error{Kind: KindValidation}))
	})

	t.Run("ExecutionUnwraps", func(t *testing.T) {
		cause := errors.New("search exploded")
		err := Execution(cause)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "execution failed: search exploded", err.Error())
	})
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Validation("bad")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("scan", "x")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(Acquisition("search", errors.New("timeout"))))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("other")))
}
