package service

import (
	"context"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/qs3c/himera_gate_server/config"
	"github.com/qs3c/himera_gate_server/internal/model"
	"github.com/qs3c/himera_gate_server/internal/pkg/generator"
	"github.com/qs3c/himera_gate_server/internal/repository"
)

// ReplyGenerator 外部文本生成服务
type ReplyGenerator interface {
	Generate(ctx context.Context, req generator.Request) (string, error)
}

// ChatReply 一轮对话的最终结果，Reply 仅在放行时有值
type ChatReply struct {
	Result  *TurnResult
	Reply   string
	Emotion string
	Mode    Mode
}

type ChatService struct {
	access    *AccessService
	assembler *ContextAssembler
	generator ReplyGenerator
	repos     *repository.Repositories
	cfg       *config.Config
	clock     clockwork.Clock
	logger    *zap.Logger
	order     *turnSequencer
}

func NewChatService(access *AccessService, assembler *ContextAssembler, gen ReplyGenerator, repos *repository.Repositories, cfg *config.Config, clock clockwork.Clock, logger *zap.Logger) *ChatService {
	return &ChatService{
		access:    access,
		assembler: assembler,
		generator: gen,
		repos:     repos,
		cfg:       cfg,
		clock:     clock,
		logger:    logger,
		order:     newTurnSequencer(),
	}
}

// Reply 准入判定、组装上下文、生成回复并写入历史
// 生成期间不持有用户锁，同一用户的轮次按到达顺序落库
func (s *ChatService) Reply(ctx context.Context, userID int64, text string) (*ChatReply, error) {
	text = strings.TrimSpace(text)

	unlock := s.access.locks.Lock(userID)
	result, err := s.access.decide(ctx, userID, text)
	if err != nil {
		unlock()
		return nil, err
	}
	if !result.Allowed() {
		unlock()
		return &ChatReply{Result: result}, nil
	}

	mode := s.access.switchMode(userID, text)
	ticket := s.order.take(userID)
	defer ticket.release()
	asm, err := s.assembler.Assemble(ctx, userID, text)
	unlock()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := s.generator.Generate(ctx, generator.Request{
		Messages:    asm.Messages,
		MaxTokens:   VerbosityBudget(text),
		Temperature: s.temperature(mode),
	})
	if err != nil {
		s.logger.Error("generate reply failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, generatorErr(err)
	}
	s.logger.Debug("reply generated",
		zap.Int64("user_id", userID),
		zap.String("mode", string(mode)),
		zap.Int("context_messages", len(asm.Messages)),
		zap.Duration("elapsed", time.Since(start)),
	)

	cleaned := CleanReply(raw)
	if cleaned == "" {
		s.logger.Warn("reply empty after cleaning", zap.Int64("user_id", userID))
		return nil, generatorErr(generator.ErrEmptyResponse)
	}

	tag := asm.Current
	if tag == nil {
		res := s.assembler.Classify(ctx, text)
		tag = &res
	}

	turns := []*model.Turn{{
		UserID:            userID,
		Role:              model.RoleUser,
		Content:           text,
		EmotionLabel:      &tag.Label,
		EmotionConfidence: &tag.Confidence,
	}}
	if HasFormatViolation(raw) {
		s.logger.Info("reply violated formatting rules", zap.Int64("user_id", userID))
		turns = append(turns, &model.Turn{UserID: userID, Role: model.RoleSystem, Content: s.cfg.Context.StyleDirective})
	}
	turns = append(turns, &model.Turn{UserID: userID, Role: model.RoleAssistant, Content: cleaned})

	if err := ticket.wait(ctx); err != nil {
		return nil, err
	}
	unlock = s.access.locks.Lock(userID)
	defer unlock()

	now := s.clock.Now().UTC()
	err = s.repos.Transaction(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		for _, turn := range turns {
			turn.ID = 0
			turn.CreatedAt = now
			if err := tx.Turns.Append(ctx, turn); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("append turns failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, storageErr(err)
	}

	return &ChatReply{
		Result:  result,
		Reply:   cleaned,
		Emotion: tag.Label,
		Mode:    mode,
	}, nil
}

func (s *ChatService) temperature(mode Mode) float64 {
	if t, ok := s.cfg.Generator.ModeTemperatures[string(mode)]; ok {
		return t
	}
	return s.cfg.Generator.Temperature
}
