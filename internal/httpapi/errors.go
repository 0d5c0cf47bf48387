package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/coursebook/internal/payments"
	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	"github.com/gin-gonic/gin"
)

var kindStatus = map[booking.ErrorKind]int{
	booking.KindNotFound:  http.StatusNotFound,
	booking.KindConflict:  http.StatusConflict,
	booking.KindMismatch:  http.StatusUnprocessableEntity,
	booking.KindInvalid:   http.StatusBadRequest,
	booking.KindTransient: http.StatusServiceUnavailable,
	booking.KindInternal:  http.StatusInternalServerError,
}

func statusForError(err error) int {
	if errors.Is(err, payments.ErrInvalidSignature) {
		return http.StatusBadRequest
	}
	if status, ok := kindStatus[booking.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// respondError writes the error envelope. Internal details never leave the
// process; they are logged by the caller.
func respondError(ctx *gin.Context, err error) {
	status := statusForError(err)
	code := booking.ErrorCode(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		code = "internal_error"
		message = "internal error"
	}
	if errors.Is(err, payments.ErrInvalidSignature) {
		code = "invalid_signature"
	}
	ctx.JSON(status, errorResponse(code, message))
}
