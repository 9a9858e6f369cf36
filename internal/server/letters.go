package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/counselops/letterflow/internal/audit/domain"
	letterdomain "github.com/counselops/letterflow/internal/letter/domain"
	"github.com/gin-gonic/gin"
)

type createLetterRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	// Generate requests an AI-produced draft instead of subscriber text.
	Generate bool `json:"generate"`
}

func (s *Server) CreateLetter(c *gin.Context) {
	principal := s.principal(c)
	var req createLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	domainReq := letterdomain.CreateRequest{
		UserID: principal.UserID,
		Title:  req.Title,
		Body:   req.Body,
	}

	var (
		letter *letterdomain.Letter
		err    error
	)
	if req.Generate {
		letter, err = s.letterSvc.CreateGenerating(c.Request.Context(), domainReq)
	} else {
		letter, err = s.letterSvc.Create(c.Request.Context(), domainReq)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": letterView(letter)})
}

func (s *Server) ListLetters(c *gin.Context) {
	principal := s.principal(c)
	letters, err := s.letterSvc.ListByUser(c.Request.Context(), principal.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	views := make([]gin.H, 0, len(letters))
	for _, letter := range letters {
		views = append(views, letterView(letter))
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

func (s *Server) GetLetter(c *gin.Context) {
	principal := s.principal(c)
	letterID, ok := pathID(c, "id")
	if !ok {
		return
	}
	letter, err := s.letterSvc.Get(c.Request.Context(), principal.UserID, letterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": letterView(letter)})
}

func (s *Server) SubmitLetter(c *gin.Context) {
	principal := s.principal(c)
	letterID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if !s.submitLimit.Allow(principal.UserID.String()) {
		AbortWithError(c, ErrRateLimited)
		return
	}
	letter, err := s.letterSvc.Submit(c.Request.Context(), principal.UserID, letterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": letterView(letter)})
}

func (s *Server) RetryLetter(c *gin.Context) {
	principal := s.principal(c)
	letterID, ok := pathID(c, "id")
	if !ok {
		return
	}
	letter, err := s.letterSvc.Retry(c.Request.Context(), principal.UserID, letterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": letterView(letter)})
}

func (s *Server) DeleteLetter(c *gin.Context) {
	principal := s.principal(c)
	letterID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.letterSvc.Delete(c.Request.Context(), principal.UserID, letterID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) LetterTrail(c *gin.Context) {
	principal := s.principal(c)
	letterID, ok := pathID(c, "id")
	if !ok {
		return
	}

	// Owners see their own trail; reviewers reach it through the review API.
	if _, err := s.letterSvc.Get(c.Request.Context(), principal.UserID, letterID); err != nil {
		AbortWithError(c, err)
		return
	}

	trail, err := s.letterSvc.Trail(c.Request.Context(), letterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	views := make([]gin.H, 0, len(trail))
	for _, record := range trail {
		views = append(views, auditView(record))
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

func (s *Server) AllowanceStatus(c *gin.Context) {
	principal := s.principal(c)
	status, err := s.allowanceSvc.Check(c.Request.Context(), principal.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"has_allowance": status.HasAllowance,
		"remaining":     status.Remaining,
		"unlimited":     status.Unlimited,
	}})
}

func pathID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param(name))
	if err != nil {
		AbortWithError(c, newValidationError(name, "invalid_id", "identifier is invalid"))
		return 0, false
	}
	return id, true
}

func letterView(letter *letterdomain.Letter) gin.H {
	view := gin.H{
		"id":               letter.ID.String(),
		"status":           letter.Status,
		"title":            letter.Title,
		"ai_draft_content": letter.AIDraftContent,
		"created_at":       letter.CreatedAt.Format(time.RFC3339),
		"updated_at":       letter.UpdatedAt.Format(time.RFC3339),
	}
	if letter.FinalContent != "" {
		view["final_content"] = letter.FinalContent
	}
	if letter.RejectionReason != "" {
		view["rejection_reason"] = letter.RejectionReason
	}
	if letter.SubmittedAt != nil {
		view["submitted_at"] = letter.SubmittedAt.Format(time.RFC3339)
	}
	if letter.CompletedAt != nil {
		view["completed_at"] = letter.CompletedAt.Format(time.RFC3339)
	}
	return view
}

func auditView(record *auditdomain.LetterAudit) gin.H {
	view := gin.H{
		"id":         record.ID.String(),
		"action":     record.Action,
		"old_status": record.OldStatus,
		"new_status": record.NewStatus,
		"created_at": record.CreatedAt.Format(time.RFC3339),
	}
	if record.PerformedBy != nil {
		view["performed_by"] = *record.PerformedBy
	}
	if record.Notes != "" {
		view["notes"] = record.Notes
	}
	return view
}
