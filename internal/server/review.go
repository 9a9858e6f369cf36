package server

import (
	"net/http"

	letterdomain "github.com/counselops/letterflow/internal/letter/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListPendingReview(c *gin.Context) {
	letters, err := s.letterSvc.ListPendingReview(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	views := make([]gin.H, 0, len(letters))
	for _, letter := range letters {
		view := letterView(letter)
		view["user_id"] = letter.UserID.String()
		views = append(views, view)
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

func (s *Server) GetLetterForReview(c *gin.Context) {
	letterID, ok := pathID(c, "id")
	if !ok {
		return
	}
	letter, err := s.letterSvc.GetForReview(c.Request.Context(), letterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	view := letterView(letter)
	view["user_id"] = letter.UserID.String()
	view["review_notes"] = letter.ReviewNotes

	trail, err := s.letterSvc.Trail(c.Request.Context(), letterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	trailViews := make([]gin.H, 0, len(trail))
	for _, record := range trail {
		trailViews = append(trailViews, auditView(record))
	}
	c.JSON(http.StatusOK, gin.H{"data": view, "audit": trailViews})
}

func (s *Server) StartReview(c *gin.Context) {
	principal := s.principal(c)
	letterID, ok := pathID(c, "id")
	if !ok {
		return
	}
	letter, err := s.letterSvc.StartReview(c.Request.Context(), principal.UserID, letterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": letterView(letter)})
}

type approveRequest struct {
	FinalContent string `json:"final_content"`
	ReviewNotes  string `json:"review_notes"`
}

func (s *Server) ApproveLetter(c *gin.Context) {
	principal := s.principal(c)
	letterID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	letter, err := s.letterSvc.Approve(c.Request.Context(), letterdomain.ApproveRequest{
		AdminID:      principal.UserID,
		LetterID:     letterID,
		FinalContent: req.FinalContent,
		ReviewNotes:  req.ReviewNotes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": letterView(letter)})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) RejectLetter(c *gin.Context) {
	principal := s.principal(c)
	letterID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	letter, err := s.letterSvc.Reject(c.Request.Context(), letterdomain.RejectRequest{
		AdminID:  principal.UserID,
		LetterID: letterID,
		Reason:   req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": letterView(letter)})
}

func (s *Server) CompleteLetter(c *gin.Context) {
	principal := s.principal(c)
	letterID, ok := pathID(c, "id")
	if !ok {
		return
	}
	letter, err := s.letterSvc.Complete(c.Request.Context(), principal.UserID, letterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": letterView(letter)})
}
