package service

import "strings"

// Mode 对话风格模式
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeExpert Mode = "expert"
	ModeWriter Mode = "writer"
)

// 整句触发，持久切换
var modePhrases = map[string]Mode{
	"анализируем?": ModeExpert,
	"поработаем?":  ModeWriter,
	"поболтаем?":   ModeAuto,
}

// 关键词触发，仅对当前消息生效，按顺序匹配；闲聊词可临时压过持久模式
var modeKeywords = []struct {
	mode  Mode
	words []string
}{
	{ModeExpert, []string{"объясни", "разбери", "анализ", "что значит", "толкование", "цитата", "в источниках"}},
	{ModeWriter, []string{"сцена", "роман", "сюжетный конспект", "напиши фрагмент", "напиши сцену"}},
	{ModeAuto, []string{"ну расскажи", "а ты что", "как дела", "болтаем", "прикольно", "что ты сейчас делаешь", "люблю", "красивая"}},
}

// DetectMode 返回持久模式与本条消息实际使用的模式
func DetectMode(current Mode, text string) (persistent, effective Mode) {
	if current == "" {
		current = ModeAuto
	}
	normalized := strings.ToLower(strings.TrimSpace(text))

	if mode, ok := modePhrases[normalized]; ok {
		return mode, mode
	}

	for _, kw := range modeKeywords {
		for _, w := range kw.words {
			if strings.Contains(normalized, w) {
				return current, kw.mode
			}
		}
	}
	return current, current
}
