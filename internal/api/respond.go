package api

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"socialhub/internal/common"
	"socialhub/internal/log"
	"socialhub/pkg/models"
)

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, models.Envelope{Success: true, Message: message, Data: data})
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, models.Envelope{Message: message})
}

// fail maps a service error onto a status code. Unclassified errors are
// logged and hidden behind a generic message.
func fail(c *gin.Context, err error) {
	var verr *common.ValidationError
	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusBadRequest, models.Envelope{
			Message: "validation failed",
			Errors:  verr.Fields,
		})
	case errors.Is(err, common.ErrorSelfTarget):
		abort(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrorInvalidCredentials),
		errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrorInvalidToken):
		abort(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, common.ErrorForbidden),
		errors.Is(err, common.ErrorNotFriends):
		abort(c, http.StatusForbidden, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		abort(c, http.StatusNotFound, err.Error())
	case errors.Is(err, common.ErrorAlreadyExists),
		errors.Is(err, common.ErrorAlreadyFriends),
		errors.Is(err, common.ErrorRequestPending):
		abort(c, http.StatusConflict, err.Error())
	default:
		logger := log.WithComponent("api")
		logger.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
		abort(c, http.StatusInternalServerError, "internal server error")
	}
}

// bind decodes the JSON body into dst and reports binding failures as field
// errors.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, bindingError(err))
		return false
	}
	return true
}

func bindingError(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return common.Invalid("body", "malformed request body")
	}
	fields := make([]common.FieldError, 0, len(ves))
	for _, fe := range ves {
		fields = append(fields, common.FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return &common.ValidationError{Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "is invalid"
	}
}

var jsonNames sync.Once

// useJSONFieldNames makes validator report fields by their json name.
func useJSONFieldNames() {
	jsonNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
}
