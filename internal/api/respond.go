package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/querydesk/internal/apperr"
)

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func respond(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, envelope{Success: true, Data: data, Message: message})
}

func ok(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, data, "")
}

func created(c *gin.Context, data interface{}) {
	respond(c, http.StatusCreated, data, "")
}

// fail writes err as an error envelope. Internal causes are logged and never
// returned to the client.
func fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		log.Printf("api: %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(statusFor(kind), envelope{
		Error: &errorBody{Code: string(kind), Message: apperr.PublicMessage(err)},
	})
}

// abort writes a bare error envelope for failures outside the apperr taxonomy
// (authentication).
func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, envelope{Error: &errorBody{Code: code, Message: message}})
}

// bind decodes the JSON body into dst, mapping decode failures to Validation.
func bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, apperr.Validationf("invalid request body: %v", err))
		return false
	}
	return true
}
