package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Problem is the error body of the CRUD and reference endpoints. The sync
// endpoint speaks its own {ok, error} protocol shape and never uses this.
type Problem struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type problemBody struct {
	Error Problem `json:"error"`
}

func Fail(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, problemBody{Error: Problem{Message: msg, Code: code}})
}

func OK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func Created(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
