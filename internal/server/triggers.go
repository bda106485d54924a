package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/loomworks/loom/pkg/api"
	"github.com/loomworks/loom/pkg/log"
)

// handleTrigger adapts one API step into a gin handler. The request body
// is validated when the step declares an input shape, then handed to the
// handler raw; the response status and body come from the handler, with
// defaults when it returns none
func (s *Server) handleTrigger(step *api.Step) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{
				Error:  fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
				Status: http.StatusBadRequest,
			})
			return
		}

		if step.NewInput != nil {
			if !s.validateInput(c, step, body) {
				return
			}
		}

		resp, traceID, err := s.engine.InvokeAPI(
			c.Request.Context(), step, body,
		)
		if err != nil {
			s.logger.Error("API trigger failed",
				log.TraceID(traceID),
				log.StepName(step.Name),
				log.Error(err))
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{
				Error:  "handler failed",
				Status: http.StatusInternalServerError,
			})
			return
		}

		if resp == nil {
			c.JSON(http.StatusOK, api.TriggerResponse{
				TraceID: traceID,
				Status:  http.StatusOK,
			})
			return
		}

		status := resp.Status
		if status == 0 {
			status = http.StatusOK
		}
		if resp.Body == nil {
			c.Status(status)
			return
		}
		c.JSON(status, resp.Body)
	}
}

// validateInput binds the body into the step's declared input shape and
// runs struct validation. A failure responds 400 with field details and
// reports false; nothing is dispatched
func (s *Server) validateInput(
	c *gin.Context, step *api.Step, body []byte,
) bool {
	input := step.NewInput()
	if err := json.Unmarshal(body, input); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
			Status: http.StatusBadRequest,
		})
		return false
	}

	err := s.validate.Struct(input)
	if err == nil {
		return true
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrInvalidInput, err),
			Status: http.StatusBadRequest,
		})
		return false
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = fe.Tag()
	}
	c.JSON(http.StatusBadRequest, api.ValidationErrorResponse{
		Error:  ErrInvalidInput.Error(),
		Fields: fields,
		Status: http.StatusBadRequest,
	})
	return false
}
