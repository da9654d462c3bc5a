package apperrors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	t.Run("chaining", func(t *testing.T) {
		ErrBase := New("base error")
		assert.Equal(t, "base error", ErrBase.Error())
		assert.Equal(t, "msg", ErrBase.New("msg").Error())
		assert.ErrorIs(t, ErrBase, ErrBase)

		ErrFirst := ErrBase.New("first level")
		assert.Equal(t, "first level", ErrFirst.Error())
		assert.ErrorIs(t, ErrFirst, ErrBase)

		ErrOther := New("another error")
		wrapped := ErrFirst.Err(ErrOther.Msg("another error msg"))
		assert.Equal(t, "first level", wrapped.Error())
		assert.ErrorIs(t, wrapped, ErrBase)
		assert.ErrorIs(t, wrapped, ErrFirst)
		assert.ErrorIs(t, wrapped, ErrOther)

		goErr := errors.New("io failure")
		wrapped = ErrFirst.MsgErr("msg", goErr)
		assert.Equal(t, "msg", wrapped.Error())
		assert.ErrorIs(t, wrapped, ErrBase)
		assert.ErrorIs(t, wrapped, goErr)
		assert.Equal(t, "msg; io failure", wrapped.ErrorAll())

		fmtErr := fmt.Errorf("formatted")
		assert.ErrorIs(t, ErrFirst.Err(fmtErr), fmtErr)
	})

	t.Run("status code and details", func(t *testing.T) {
		ErrRemote := New("remote error").SetStatusCode(http.StatusBadGateway)
		derived := ErrRemote.New("rejected")
		assert.Equal(t, http.StatusBadGateway, derived.StatusCode())
		assert.Nil(t, derived.Details())

		withDetails := derived.WithDetails(map[string]any{"field": "name"})
		assert.Equal(t, map[string]any{"field": "name"}, withDetails.Details())
		assert.Nil(t, derived.Details(), "original is not mutated")
		assert.Equal(t, http.StatusBadGateway, StatusCodeOf(fmt.Errorf("wrap: %w", withDetails)))
		assert.Equal(t, 0, StatusCodeOf(errors.New("plain")))
	})
}
