package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	letterdomain "github.com/counselops/letterflow/internal/letter/domain"
	"github.com/gin-gonic/gin"
)

type generationWebhookRequest struct {
	LetterID string `json:"letter_id"`
	Status   string `json:"status"`
	Draft    string `json:"draft"`
	Reason   string `json:"reason"`
}

// GenerationWebhook settles a draft-generation attempt. The generation
// pipeline authenticates with its own shared secret; a succeeded callback
// carries the produced draft, a failed one the failure reason.
func (s *Server) GenerationWebhook(c *gin.Context) {
	secret := s.cfg.GenerationWebhookSecret
	provided := strings.TrimSpace(c.GetHeader(headerWebhookAuth))
	if secret == "" || provided == "" ||
		subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req generationWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	letterID, err := snowflake.ParseString(req.LetterID)
	if err != nil {
		AbortWithError(c, newValidationError("letter_id", "invalid_id", "letter id is invalid"))
		return
	}

	var letter *letterdomain.Letter
	switch req.Status {
	case "succeeded":
		letter, err = s.letterSvc.MarkGenerated(c.Request.Context(), letterID, req.Draft)
	case "failed":
		letter, err = s.letterSvc.MarkGenerationFailed(c.Request.Context(), letterID, req.Reason)
	default:
		AbortWithError(c, newValidationError("status", "invalid_status", "status must be succeeded or failed"))
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": letterView(letter)})
}
