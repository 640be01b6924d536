package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/qsubscription/internal/subscription/domain"
)

type removeSubscriptionQuery struct {
	Region         string `form:"region"`
	ApplicationID  string `form:"applicationId"`
	AssignmentType string `form:"assignmentType"`
	AssignmentID   string `form:"assignmentId"`
}

// AddSubscription maps a create call onto the ADD action.
func (s *Server) AddSubscription(c *gin.Context) {
	req, ok := s.decodeBody(c)
	if !ok {
		return
	}
	s.handle(c, domain.AddRequest(req))
}

// RemoveSubscription maps a delete call onto the DELETE action.
func (s *Server) RemoveSubscription(c *gin.Context) {
	var query removeSubscriptionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, domain.NewValidationError("Invalid query parameters"))
		return
	}
	s.handle(c, domain.DeleteRequest(query.Region, query.ApplicationID, query.AssignmentType, query.AssignmentID))
}

// HandleSubscriptionAction accepts the normalized request with the action in the body.
func (s *Server) HandleSubscriptionAction(c *gin.Context) {
	req, ok := s.decodeBody(c)
	if !ok {
		return
	}
	s.handle(c, req)
}

// decodeBody shares domain.DecodeRequest with the Lambda and CLI surfaces, so
// an empty body decodes to the zero request here too.
func (s *Server) decodeBody(c *gin.Context) (domain.Request, bool) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, domain.NewValidationError("Invalid request body"))
		return domain.Request{}, false
	}
	req, err := domain.DecodeRequest(raw)
	if err != nil {
		AbortWithError(c, err)
		return domain.Request{}, false
	}
	return req, true
}

func (s *Server) handle(c *gin.Context, req domain.Request) {
	result, err := s.subscriptionSvc.Handle(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
