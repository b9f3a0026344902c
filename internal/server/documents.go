package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type reserveDocumentRequest struct {
	Prefix string `json:"prefix"`
}

// ReserveDocumentID consumes the next identifier for manual use. An empty
// prefix falls back to the configured default.
func (s *Server) ReserveDocumentID(c *gin.Context) {
	var req reserveDocumentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	id, err := s.sequence.NextDocumentID(c.Request.Context(), strings.TrimSpace(req.Prefix))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": gin.H{"document_id": id.String()}})
}

func (s *Server) PeekDocumentID(c *gin.Context) {
	id, err := s.sequence.Peek(c.Request.Context(), strings.TrimSpace(c.Query("prefix")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"document_id": id.String()}})
}

func (s *Server) LookupDocumentID(c *gin.Context) {
	doc, err := s.sequence.Lookup(c.Request.Context(), c.Query("document_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": doc})
}
