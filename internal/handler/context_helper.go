package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-entry-sync/internal/middleware"
	"github.com/noah-isme/sma-entry-sync/internal/models"
	appErrors "github.com/noah-isme/sma-entry-sync/pkg/errors"
	"github.com/noah-isme/sma-entry-sync/pkg/response"
)

// bindJSON decodes and validates the request body, writing the error response
// itself when it returns false.
func bindJSON(c *gin.Context, validate *validator.Validate, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	if err := validate.Struct(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, err.Error()))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, validate *validator.Validate, dest interface{}) bool {
	if err := c.ShouldBindQuery(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return false
	}
	if err := validate.Struct(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, err.Error()))
		return false
	}
	return true
}

func actorFromContext(c *gin.Context) string {
	return middleware.Actor(c)
}

func attendanceScope(c *gin.Context) models.Scope {
	return models.AttendanceScope(c.Param("courseId"), c.Param("date"))
}

func newValidator(v *validator.Validate) *validator.Validate {
	if v == nil {
		return validator.New()
	}
	return v
}
