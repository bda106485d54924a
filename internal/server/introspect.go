package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/loomworks/loom/pkg/api"
)

func (s *Server) listSteps(c *gin.Context) {
	steps := s.engine.Index().Steps()
	c.JSON(http.StatusOK, api.StepListResponse{
		Steps: steps,
		Count: len(steps),
	})
}

func (s *Server) getStep(c *gin.Context) {
	name := api.Name(c.Param("name"))

	step, ok := s.engine.Index().Step(name)
	if !ok {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %s", ErrStepNotFound, name),
			Status: http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusOK, step)
}

// listFlows projects the frozen registry into per-flow membership and
// topic edges. The graph is static; dispatch never consults it
func (s *Server) listFlows(c *gin.Context) {
	idx := s.engine.Index()

	byLabel := map[api.FlowLabel]*api.FlowView{}
	var order []api.FlowLabel
	for _, step := range idx.Steps() {
		for _, label := range step.Flows {
			view, ok := byLabel[label]
			if !ok {
				view = &api.FlowView{Name: label}
				byLabel[label] = view
				order = append(order, label)
			}
			view.Steps = append(view.Steps, step.Name)
		}
	}

	for _, label := range order {
		byLabel[label].Edges = s.flowEdges(byLabel[label].Steps)
	}

	flows := make([]*api.FlowView, len(order))
	for i, label := range order {
		flows[i] = byLabel[label]
	}
	c.JSON(http.StatusOK, api.FlowListResponse{
		Flows: flows,
		Count: len(flows),
	})
}

// flowEdges connects each member step's emitted topics to the member
// steps subscribed to them
func (s *Server) flowEdges(members []api.Name) []api.FlowEdge {
	idx := s.engine.Index()
	inFlow := map[api.Name]bool{}
	for _, name := range members {
		inFlow[name] = true
	}

	var edges []api.FlowEdge
	for _, name := range members {
		step, _ := idx.Step(name)
		for _, topic := range step.Emits {
			for _, sub := range idx.Subscribers(topic) {
				if !inFlow[sub.Name] {
					continue
				}
				edges = append(edges, api.FlowEdge{
					From:  step.Name,
					To:    sub.Name,
					Topic: topic,
				})
			}
		}
	}
	return edges
}

func (s *Server) listTopics(c *gin.Context) {
	idx := s.engine.Index()

	topics := make([]*api.TopicView, 0)
	for _, topic := range idx.Topics() {
		topics = append(topics, &api.TopicView{
			Topic:       topic,
			Subscribers: stepNames(idx.Subscribers(topic)),
			Emitters:    stepNames(idx.Emitters(topic)),
		})
	}
	c.JSON(http.StatusOK, api.TopicListResponse{
		Topics: topics,
		Count:  len(topics),
	})
}

// getState reads one state entry. An optional ?path= query extracts a
// sub-value from the stored JSON document
func (s *Server) getState(c *gin.Context) {
	scope := c.Param("scope")
	key := c.Param("key")

	val, err := s.engine.State().Get(c.Request.Context(), scope, key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrReadState, err),
			Status: http.StatusInternalServerError,
		})
		return
	}
	if val == nil {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  fmt.Sprintf("state not found: %s/%s", scope, key),
			Status: http.StatusNotFound,
		})
		return
	}

	if path := c.Query("path"); path != "" {
		res := gjson.GetBytes(val, path)
		if !res.Exists() {
			c.JSON(http.StatusNotFound, api.ErrorResponse{
				Error:  fmt.Sprintf("path not found: %s", path),
				Status: http.StatusNotFound,
			})
			return
		}
		c.Data(http.StatusOK, "application/json", []byte(res.Raw))
		return
	}

	c.Data(http.StatusOK, "application/json", val)
}

func (s *Server) clearState(c *gin.Context) {
	scope := c.Param("scope")

	if err := s.engine.State().Clear(c.Request.Context(), scope); err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrClearState, err),
			Status: http.StatusInternalServerError,
		})
		return
	}
	c.Status(http.StatusNoContent)
}

func stepNames(steps []*api.Step) []api.Name {
	if len(steps) == 0 {
		return nil
	}
	names := make([]api.Name, len(steps))
	for i, step := range steps {
		names[i] = step.Name
	}
	return names
}
