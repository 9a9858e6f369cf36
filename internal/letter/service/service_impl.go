package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	allowancedomain "github.com/counselops/letterflow/internal/allowance/domain"
	auditdomain "github.com/counselops/letterflow/internal/audit/domain"
	"github.com/counselops/letterflow/internal/clock"
	letterdomain "github.com/counselops/letterflow/internal/letter/domain"
	"github.com/counselops/letterflow/internal/notification"
	"github.com/counselops/letterflow/internal/observability/metrics"
	"github.com/counselops/letterflow/internal/sanitize"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	AllowanceSvc allowancedomain.Service
	AuditSvc     auditdomain.Service
	Notifier     *notification.Queue
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	allowanceSvc allowancedomain.Service
	auditSvc     auditdomain.Service
	notifier     *notification.Queue
}

func NewService(p Params) letterdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("letter.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		allowanceSvc: p.AllowanceSvc,
		auditSvc:     p.AuditSvc,
		notifier:     p.Notifier,
	}
}

func (s *Service) Create(ctx context.Context, req letterdomain.CreateRequest) (*letterdomain.Letter, error) {
	return s.create(ctx, req, letterdomain.StatusDraft, false)
}

// CreateGenerating opens the AI-draft path. The allowance unit is consumed up
// front so a generated draft is always paid for; generation failure refunds it.
func (s *Service) CreateGenerating(ctx context.Context, req letterdomain.CreateRequest) (*letterdomain.Letter, error) {
	if req.UserID == 0 {
		return nil, letterdomain.ErrForbidden
	}
	deducted, err := s.consumeAllowance(ctx, req.UserID, 0)
	if err != nil {
		return nil, err
	}
	created, err := s.create(ctx, req, letterdomain.StatusGenerating, deducted)
	if err != nil {
		if deducted {
			s.refund(ctx, req.UserID)
		}
		return nil, err
	}

	s.auditSvc.RecordBestEffort(ctx, auditdomain.Entry{
		LetterID:    created.ID,
		Action:      auditdomain.ActionGenerationStarted,
		NewStatus:   string(letterdomain.StatusGenerating),
		PerformedBy: req.UserID.String(),
	})
	return created, nil
}

func (s *Service) create(ctx context.Context, req letterdomain.CreateRequest, status letterdomain.Status, creditConsumed bool) (*letterdomain.Letter, error) {
	if req.UserID == 0 {
		return nil, letterdomain.ErrForbidden
	}
	title := sanitize.Text(req.Title, letterdomain.MaxTitleLen)
	if title == "" {
		return nil, letterdomain.ErrInvalidTitle
	}

	now := s.clock.Now()
	record := &letterdomain.Letter{
		ID:             s.genID.Generate(),
		UserID:         req.UserID,
		Status:         status,
		Title:          title,
		AIDraftContent: sanitize.Text(req.Body, letterdomain.MaxDraftContentLen),
		CreditConsumed: creditConsumed,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// Submit moves draft -> pending_review. The deduction happens before the
// status commit so two concurrent submissions can never both spend the same
// credit; a commit that loses the optimistic update refunds the deduction.
func (s *Service) Submit(ctx context.Context, userID, letterID snowflake.ID) (*letterdomain.Letter, error) {
	letter, err := s.loadOwned(ctx, userID, letterID)
	if err != nil {
		return nil, err
	}
	if !letterdomain.CanTransition(letter.Status, letterdomain.StatusPendingReview) {
		metrics.Letters().IncSubmission("failed")
		return nil, letterdomain.NewTransitionError(letter.Status, letterdomain.StatusPendingReview)
	}

	// A letter that entered through the generating path already paid for
	// its unit at creation; submitting it must not charge a second one.
	deductedNow := false
	if !letter.CreditConsumed {
		deductedNow, err = s.consumeAllowance(ctx, userID, letterID)
		if err != nil {
			if errors.Is(err, letterdomain.ErrAllowanceExhausted) {
				metrics.Letters().IncSubmission("exhausted")
			}
			return nil, err
		}
	}

	now := s.clock.Now()
	updated, err := s.commit(ctx, letter, letterdomain.StatusPendingReview, map[string]any{
		"submitted_at":    now,
		"credit_consumed": letter.CreditConsumed || deductedNow,
	})
	if err != nil {
		if deductedNow {
			s.refund(ctx, userID)
		}
		if errors.Is(err, letterdomain.ErrTransitionConflict) {
			metrics.Letters().IncSubmission("conflict")
		}
		return nil, err
	}

	s.auditSvc.RecordBestEffort(ctx, auditdomain.Entry{
		LetterID:    letter.ID,
		Action:      auditdomain.ActionSubmitted,
		OldStatus:   string(letter.Status),
		NewStatus:   string(letterdomain.StatusPendingReview),
		PerformedBy: userID.String(),
	})
	s.notify(ctx, userID, notification.TemplateLetterSubmitted, map[string]any{
		"letter_id": letter.ID.String(),
		"title":     letter.Title,
	})
	metrics.Letters().IncSubmission("accepted")
	return updated, nil
}

func (s *Service) MarkGenerated(ctx context.Context, letterID snowflake.ID, draft string) (*letterdomain.Letter, error) {
	letter, err := s.load(ctx, letterID)
	if err != nil {
		return nil, err
	}
	if !letterdomain.CanTransition(letter.Status, letterdomain.StatusPendingReview) {
		return nil, letterdomain.NewTransitionError(letter.Status, letterdomain.StatusPendingReview)
	}

	updated, err := s.commit(ctx, letter, letterdomain.StatusPendingReview, map[string]any{
		"ai_draft_content": sanitize.Text(draft, letterdomain.MaxDraftContentLen),
		"submitted_at":     s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.RecordBestEffort(ctx, auditdomain.Entry{
		LetterID:  letter.ID,
		Action:    auditdomain.ActionGenerated,
		OldStatus: string(letter.Status),
		NewStatus: string(letterdomain.StatusPendingReview),
	})
	return updated, nil
}

func (s *Service) MarkGenerationFailed(ctx context.Context, letterID snowflake.ID, reason string) (*letterdomain.Letter, error) {
	letter, err := s.load(ctx, letterID)
	if err != nil {
		return nil, err
	}
	if !letterdomain.CanTransition(letter.Status, letterdomain.StatusFailed) {
		return nil, letterdomain.NewTransitionError(letter.Status, letterdomain.StatusFailed)
	}

	updated, err := s.commit(ctx, letter, letterdomain.StatusFailed, map[string]any{
		"credit_consumed": false,
	})
	if err != nil {
		return nil, err
	}

	if letter.CreditConsumed {
		s.refund(ctx, letter.UserID)
	}

	s.auditSvc.RecordBestEffort(ctx, auditdomain.Entry{
		LetterID:  letter.ID,
		Action:    auditdomain.ActionGenerationFailed,
		OldStatus: string(letter.Status),
		NewStatus: string(letterdomain.StatusFailed),
		Notes:     sanitize.Text(reason, letterdomain.MaxReviewNotesLen),
	})
	return updated, nil
}

func (s *Service) Retry(ctx context.Context, userID, letterID snowflake.ID) (*letterdomain.Letter, error) {
	letter, err := s.loadOwned(ctx, userID, letterID)
	if err != nil {
		return nil, err
	}
	if !letterdomain.CanTransition(letter.Status, letterdomain.StatusDraft) {
		return nil, letterdomain.NewTransitionError(letter.Status, letterdomain.StatusDraft)
	}

	updated, err := s.commit(ctx, letter, letterdomain.StatusDraft, nil)
	if err != nil {
		return nil, err
	}

	s.auditSvc.RecordBestEffort(ctx, auditdomain.Entry{
		LetterID:    letter.ID,
		Action:      auditdomain.ActionRetried,
		OldStatus:   string(letter.Status),
		NewStatus:   string(letterdomain.StatusDraft),
		PerformedBy: userID.String(),
	})
	return updated, nil
}

func (s *Service) StartReview(ctx context.Context, adminID, letterID snowflake.ID) (*letterdomain.Letter, error) {
	letter, err := s.load(ctx, letterID)
	if err != nil {
		return nil, err
	}
	if !letterdomain.CanTransition(letter.Status, letterdomain.StatusUnderReview) {
		return nil, letterdomain.NewTransitionError(letter.Status, letterdomain.StatusUnderReview)
	}

	updated, err := s.commit(ctx, letter, letterdomain.StatusUnderReview, map[string]any{
		"reviewed_by": adminID,
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.RecordBestEffort(ctx, auditdomain.Entry{
		LetterID:    letter.ID,
		Action:      auditdomain.ActionReviewStarted,
		OldStatus:   string(letter.Status),
		NewStatus:   string(letterdomain.StatusUnderReview),
		PerformedBy: adminID.String(),
	})
	metrics.Letters().IncReviewDecision("started")
	return updated, nil
}

func (s *Service) Approve(ctx context.Context, req letterdomain.ApproveRequest) (*letterdomain.Letter, error) {
	finalContent := sanitize.Text(req.FinalContent, letterdomain.MaxFinalContentLen)
	if finalContent == "" {
		return nil, letterdomain.ErrMissingContent
	}
	notes := sanitize.Text(req.ReviewNotes, letterdomain.MaxReviewNotesLen)

	letter, err := s.load(ctx, req.LetterID)
	if err != nil {
		return nil, err
	}
	if !letterdomain.CanTransition(letter.Status, letterdomain.StatusApproved) {
		return nil, letterdomain.NewTransitionError(letter.Status, letterdomain.StatusApproved)
	}

	now := s.clock.Now()
	updated, err := s.commit(ctx, letter, letterdomain.StatusApproved, map[string]any{
		"final_content": finalContent,
		"review_notes":  notes,
		"approved_at":   now,
		"reviewed_at":   now,
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.RecordBestEffort(ctx, auditdomain.Entry{
		LetterID:    letter.ID,
		Action:      auditdomain.ActionApproved,
		OldStatus:   string(letter.Status),
		NewStatus:   string(letterdomain.StatusApproved),
		PerformedBy: req.AdminID.String(),
		Notes:       notes,
	})
	s.notify(ctx, letter.UserID, notification.TemplateLetterApproved, map[string]any{
		"letter_id": letter.ID.String(),
		"title":     letter.Title,
	})
	metrics.Letters().IncReviewDecision("approved")
	if letter.SubmittedAt != nil {
		metrics.Letters().ObserveReviewLatency(now.Sub(*letter.SubmittedAt))
	}
	return updated, nil
}

func (s *Service) Reject(ctx context.Context, req letterdomain.RejectRequest) (*letterdomain.Letter, error) {
	reason := sanitize.Text(req.Reason, letterdomain.MaxRejectionReasonLen)
	if reason == "" {
		return nil, letterdomain.ErrMissingReason
	}

	letter, err := s.load(ctx, req.LetterID)
	if err != nil {
		return nil, err
	}
	if !letterdomain.CanTransition(letter.Status, letterdomain.StatusRejected) {
		return nil, letterdomain.NewTransitionError(letter.Status, letterdomain.StatusRejected)
	}

	now := s.clock.Now()
	updated, err := s.commit(ctx, letter, letterdomain.StatusRejected, map[string]any{
		"rejection_reason": reason,
		"reviewed_at":      now,
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.RecordBestEffort(ctx, auditdomain.Entry{
		LetterID:    letter.ID,
		Action:      auditdomain.ActionRejected,
		OldStatus:   string(letter.Status),
		NewStatus:   string(letterdomain.StatusRejected),
		PerformedBy: req.AdminID.String(),
		Notes:       reason,
	})
	s.notify(ctx, letter.UserID, notification.TemplateLetterRejected, map[string]any{
		"letter_id": letter.ID.String(),
		"title":     letter.Title,
		"reason":    reason,
	})
	metrics.Letters().IncReviewDecision("rejected")
	if letter.SubmittedAt != nil {
		metrics.Letters().ObserveReviewLatency(now.Sub(*letter.SubmittedAt))
	}
	return updated, nil
}

func (s *Service) Complete(ctx context.Context, adminID, letterID snowflake.ID) (*letterdomain.Letter, error) {
	letter, err := s.load(ctx, letterID)
	if err != nil {
		return nil, err
	}
	if !letterdomain.CanTransition(letter.Status, letterdomain.StatusCompleted) {
		return nil, letterdomain.NewTransitionError(letter.Status, letterdomain.StatusCompleted)
	}

	updated, err := s.commit(ctx, letter, letterdomain.StatusCompleted, map[string]any{
		"completed_at": s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.RecordBestEffort(ctx, auditdomain.Entry{
		LetterID:    letter.ID,
		Action:      auditdomain.ActionCompleted,
		OldStatus:   string(letter.Status),
		NewStatus:   string(letterdomain.StatusCompleted),
		PerformedBy: adminID.String(),
	})
	s.notify(ctx, letter.UserID, notification.TemplateLetterCompleted, map[string]any{
		"letter_id": letter.ID.String(),
		"title":     letter.Title,
	})
	metrics.Letters().IncReviewDecision("completed")
	return updated, nil
}

// Delete hard-deletes an owner's letter. The status guard rides in the
// delete statement itself so a concurrent transition cannot slip a
// non-deletable letter through.
func (s *Service) Delete(ctx context.Context, userID, letterID snowflake.ID) error {
	letter, err := s.loadOwned(ctx, userID, letterID)
	if err != nil {
		return err
	}
	if !letter.Status.Deletable() {
		return letterdomain.ErrNotDeletable
	}

	result := s.db.WithContext(ctx).Exec(
		`DELETE FROM letters
		 WHERE id = ? AND user_id = ? AND status IN (?, ?, ?)`,
		letterID,
		userID,
		letterdomain.StatusDraft,
		letterdomain.StatusRejected,
		letterdomain.StatusFailed,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return letterdomain.ErrTransitionConflict
	}

	s.auditSvc.RecordBestEffort(ctx, auditdomain.Entry{
		LetterID:    letterID,
		Action:      auditdomain.ActionDeleted,
		OldStatus:   string(letter.Status),
		PerformedBy: userID.String(),
	})
	return nil
}

func (s *Service) Get(ctx context.Context, userID, letterID snowflake.ID) (*letterdomain.Letter, error) {
	return s.loadOwned(ctx, userID, letterID)
}

func (s *Service) GetForReview(ctx context.Context, letterID snowflake.ID) (*letterdomain.Letter, error) {
	return s.load(ctx, letterID)
}

func (s *Service) ListByUser(ctx context.Context, userID snowflake.ID) ([]*letterdomain.Letter, error) {
	if userID == 0 {
		return nil, letterdomain.ErrForbidden
	}
	var letters []*letterdomain.Letter
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&letters).Error
	if err != nil {
		return nil, err
	}
	return letters, nil
}

func (s *Service) ListPendingReview(ctx context.Context) ([]*letterdomain.Letter, error) {
	var letters []*letterdomain.Letter
	err := s.db.WithContext(ctx).
		Where("status IN ?", []letterdomain.Status{letterdomain.StatusPendingReview, letterdomain.StatusUnderReview}).
		Order("submitted_at ASC, id ASC").
		Find(&letters).Error
	if err != nil {
		return nil, err
	}
	return letters, nil
}

func (s *Service) Trail(ctx context.Context, letterID snowflake.ID) ([]*auditdomain.LetterAudit, error) {
	return s.auditSvc.Trail(ctx, letterID, auditdomain.OrderRecent)
}

// commit applies one validated transition with an optimistic conditional
// update. Zero rows affected means another actor moved the letter first.
func (s *Service) commit(ctx context.Context, letter *letterdomain.Letter, to letterdomain.Status, updates map[string]any) (*letterdomain.Letter, error) {
	values := map[string]any{
		"status":     to,
		"updated_at": s.clock.Now(),
	}
	for key, value := range updates {
		values[key] = value
	}

	result := s.db.WithContext(ctx).
		Model(&letterdomain.Letter{}).
		Where("id = ? AND status = ?", letter.ID, letter.Status).
		Updates(values)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, letterdomain.ErrTransitionConflict
	}

	return s.load(ctx, letter.ID)
}

// consumeAllowance decides whether this attempt needs to spend a credit and
// spends it. Returns whether a unit was actually deducted.
func (s *Service) consumeAllowance(ctx context.Context, userID, excludeLetterID snowflake.ID) (bool, error) {
	status, err := s.allowanceSvc.Check(ctx, userID)
	if err != nil {
		return false, err
	}
	if status.Unlimited {
		metrics.Letters().IncDeduction("unlimited")
		return false, nil
	}

	trial, err := s.trialEligible(ctx, userID, excludeLetterID)
	if err != nil {
		return false, err
	}
	if trial {
		metrics.Letters().IncDeduction("trial")
		return false, nil
	}

	deducted, err := s.allowanceSvc.Deduct(ctx, userID)
	if err != nil {
		return false, err
	}
	if !deducted {
		return false, letterdomain.ErrAllowanceExhausted
	}
	return true, nil
}

// trialEligible reports whether this would be the user's first submitted,
// non-failed letter. Drafts and failed attempts do not burn the trial.
func (s *Service) trialEligible(ctx context.Context, userID, excludeLetterID snowflake.ID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM letters
		 WHERE user_id = ? AND id <> ? AND status NOT IN (?, ?)`,
		userID,
		excludeLetterID,
		letterdomain.StatusDraft,
		letterdomain.StatusFailed,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

func (s *Service) refund(ctx context.Context, userID snowflake.ID) {
	if err := s.allowanceSvc.Refund(ctx, userID); err != nil {
		s.log.Error("allowance refund failed",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) notify(ctx context.Context, userID snowflake.ID, template string, payload map[string]any) {
	recipient := s.userEmail(ctx, userID)
	if recipient == "" {
		return
	}
	if err := s.notifier.Enqueue(ctx, notification.Message{
		Template:  template,
		Recipient: recipient,
		Payload:   payload,
	}); err != nil {
		s.log.Warn("notification enqueue failed",
			zap.String("template", template),
			zap.Error(err),
		)
	}
}

func (s *Service) userEmail(ctx context.Context, userID snowflake.ID) string {
	var email string
	if err := s.db.WithContext(ctx).Raw(
		`SELECT email FROM users WHERE id = ?`,
		userID,
	).Scan(&email).Error; err != nil {
		s.log.Warn("user email lookup failed",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return ""
	}
	return strings.TrimSpace(email)
}

func (s *Service) load(ctx context.Context, letterID snowflake.ID) (*letterdomain.Letter, error) {
	if letterID == 0 {
		return nil, letterdomain.ErrNotFound
	}
	var letter letterdomain.Letter
	err := s.db.WithContext(ctx).Where("id = ?", letterID).Take(&letter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, letterdomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &letter, nil
}

func (s *Service) loadOwned(ctx context.Context, userID, letterID snowflake.ID) (*letterdomain.Letter, error) {
	letter, err := s.load(ctx, letterID)
	if err != nil {
		return nil, err
	}
	if letter.UserID != userID {
		return nil, letterdomain.ErrForbidden
	}
	return letter, nil
}
