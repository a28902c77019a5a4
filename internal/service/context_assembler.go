package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/qs3c/himera_gate_server/config"
	"github.com/qs3c/himera_gate_server/internal/model"
	"github.com/qs3c/himera_gate_server/internal/pkg/emotion"
	"github.com/qs3c/himera_gate_server/internal/pkg/generator"
	"github.com/qs3c/himera_gate_server/internal/repository"
)

const emotionDirectiveFormat = "Эмоциональный фон собеседника в последних сообщениях: %s. Учитывай его в тоне ответа."

// EmotionClassifier 情绪分类器
type EmotionClassifier interface {
	Classify(ctx context.Context, text string) (emotion.Result, error)
}

// Assembly 组装好的上下文
type Assembly struct {
	Messages []generator.Message
	Emotions []string
	// Current 冷启动时对当前消息的分类结果
	Current *emotion.Result
}

type ContextAssembler struct {
	repos      *repository.Repositories
	classifier EmotionClassifier
	cfg        *config.Config
	logger     *zap.Logger
}

func NewContextAssembler(repos *repository.Repositories, classifier EmotionClassifier, cfg *config.Config, logger *zap.Logger) *ContextAssembler {
	return &ContextAssembler{
		repos:      repos,
		classifier: classifier,
		cfg:        cfg,
		logger:     logger,
	}
}

// Assemble 按 基础指令、风格指令、情绪摘要、历史(周期性重复风格指令)、当前消息 的顺序组装
func (a *ContextAssembler) Assemble(ctx context.Context, userID int64, text string) (*Assembly, error) {
	var turns []model.Turn
	err := a.repos.Do(ctx, func(ctx context.Context) error {
		var err error
		turns, err = a.repos.Turns.Recent(ctx, userID, a.cfg.Context.HistoryWindow)
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}

	asm := &Assembly{Emotions: recentEmotions(turns, a.cfg.Context.EmotionSummarySize)}
	if len(asm.Emotions) == 0 {
		res := a.Classify(ctx, text)
		asm.Current = &res
		asm.Emotions = []string{res.Label}
	}

	every := a.cfg.Context.ReinjectEvery
	style := generator.Message{Role: model.RoleSystem, Content: a.cfg.Context.StyleDirective}

	msgs := make([]generator.Message, 0, len(turns)+len(turns)/every+4)
	msgs = append(msgs,
		generator.Message{Role: model.RoleSystem, Content: a.cfg.Context.BaseDirective},
		style,
		generator.Message{Role: model.RoleSystem, Content: fmt.Sprintf(emotionDirectiveFormat, strings.Join(asm.Emotions, ", "))},
	)
	for i, turn := range turns {
		if (i+1)%every == 0 {
			msgs = append(msgs, style)
		}
		msgs = append(msgs, generator.Message{Role: turn.Role, Content: turn.Content})
	}
	msgs = append(msgs, generator.Message{Role: model.RoleUser, Content: text})

	asm.Messages = msgs
	return asm, nil
}

// Classify 分类失败时降级为 neutral
func (a *ContextAssembler) Classify(ctx context.Context, text string) emotion.Result {
	if a.classifier == nil {
		return emotion.Result{Label: emotion.Neutral, Confidence: 1.0}
	}

	res, err := a.classifier.Classify(ctx, text)
	if err != nil {
		a.logger.Warn("emotion classification failed", zap.Error(err))
		return emotion.Result{Label: emotion.Neutral}
	}
	return res
}

// recentEmotions 取最近 n 条用户消息的情绪标签，按时间正序
func recentEmotions(turns []model.Turn, n int) []string {
	var labels []string
	for i := len(turns) - 1; i >= 0 && len(labels) < n; i-- {
		turn := turns[i]
		if turn.Role != model.RoleUser || turn.EmotionLabel == nil || *turn.EmotionLabel == "" {
			continue
		}
		labels = append(labels, *turn.EmotionLabel)
	}

	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
	return labels
}
