// Package handlers implements the REST and streaming endpoints.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aria-ai/aria/pkg/errors"
)

// respondError maps tagged application errors to HTTP statuses. Anything
// untagged is a 500 with the error text as detail.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.IsNotFound(err):
		status = http.StatusNotFound
	case errors.IsAlreadyExists(err):
		status = http.StatusConflict
	case errors.IsValidation(err):
		status = http.StatusBadRequest
	case errors.IsConfigError(err):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"detail": err.Error()})
}
