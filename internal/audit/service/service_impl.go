package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/counselops/letterflow/internal/audit/domain"
	"github.com/counselops/letterflow/internal/auditcontext"
	"github.com/counselops/letterflow/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	if entry.LetterID == 0 {
		return auditdomain.ErrInvalidLetter
	}
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	record := &auditdomain.LetterAudit{
		ID:        s.genID.Generate(),
		LetterID:  entry.LetterID,
		Action:    action,
		OldStatus: entry.OldStatus,
		NewStatus: entry.NewStatus,
		Notes:     entry.Notes,
		Metadata:  datatypes.JSONMap{},
		CreatedAt: s.clock.Now(),
	}
	if performer := strings.TrimSpace(entry.PerformedBy); performer != "" {
		record.PerformedBy = &performer
	}
	for key, value := range entry.Metadata {
		if strings.TrimSpace(key) == "" {
			continue
		}
		record.Metadata[key] = value
	}

	// Request metadata rides along when the call originated from an HTTP
	// handler. Worker-originated records simply have none.
	if ip := auditcontext.IPAddressFromContext(ctx); ip != "" {
		record.Metadata["ip_address"] = ip
	}
	if ua := auditcontext.UserAgentFromContext(ctx); ua != "" {
		record.Metadata["user_agent"] = ua
	}
	if record.PerformedBy == nil {
		if actorID, _ := auditcontext.ActorFromContext(ctx); actorID != "" {
			record.PerformedBy = &actorID
		}
	}

	return s.repo.Insert(ctx, s.db, record)
}

// RecordBestEffort logs and swallows persistence failures. The committed
// transition outranks its own trail.
func (s *Service) RecordBestEffort(ctx context.Context, entry auditdomain.Entry) {
	if err := s.Record(ctx, entry); err != nil {
		s.log.Error("audit record dropped",
			zap.String("letter_id", entry.LetterID.String()),
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}

func (s *Service) Trail(ctx context.Context, letterID snowflake.ID, order auditdomain.Order) ([]*auditdomain.LetterAudit, error) {
	if letterID == 0 {
		return nil, auditdomain.ErrInvalidLetter
	}
	return s.repo.ListByLetter(ctx, s.db, letterID, order)
}
