package web

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/rmrecorder/recentmessages/internal/auth"
	"github.com/rmrecorder/recentmessages/internal/web/apierror"
)

type errorResponse struct {
	Error     string        `json:"error"`
	ErrorCode apierror.Code `json:"error_code"`
}

func writeError(c *gin.Context, err *apierror.Error) {
	c.AbortWithStatusJSON(err.Status(), errorResponse{Error: err.Message, ErrorCode: err.Code})
}

// classifyAuthError maps an *auth.Error from the session/Twitch layer
// onto the HTTP error taxonomy.
func classifyAuthError(err error) *apierror.Error {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		switch authErr.Code {
		case auth.CodeInvalidAuthorizationCode:
			return apierror.New(apierror.CodeInvalidAuthorizationCode, authErr.Error())
		case auth.CodeUnauthorized, auth.CodeNotFound:
			return apierror.New(apierror.CodeUnauthorized, "session is invalid or expired")
		}
	}
	return apierror.New(apierror.CodeInternalServerError, "internal server error")
}
