package service

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	formattingChars = regexp.MustCompile("[*_`~•\\[\\]<>=#]")
	emojiRanges     = regexp.MustCompile("[\\x{1F600}-\\x{1F64F}\\x{1F300}-\\x{1F5FF}\\x{1F680}-\\x{1F6FF}\\x{1F1E0}-\\x{1F1FF}\\x{1F900}-\\x{1F9FF}\\x{2600}-\\x{26FF}\\x{2702}-\\x{27B0}\\x{FE0F}]")
	inlineSpace     = regexp.MustCompile(`[ \t]+`)
	spaceAroundLF   = regexp.MustCompile(` *\n *`)
)

// HasFormatViolation 回复中是否含有禁止的排版符号
func HasFormatViolation(reply string) bool {
	return formattingChars.MatchString(reply)
}

// CleanReply 去掉表情与排版符号并压缩空白
func CleanReply(reply string) string {
	out := emojiRanges.ReplaceAllString(reply, "")
	out = formattingChars.ReplaceAllString(out, " ")
	out = inlineSpace.ReplaceAllString(out, " ")
	out = spaceAroundLF.ReplaceAllString(out, "\n")
	return strings.TrimSpace(out)
}

// VerbosityBudget 短消息允许更长的回复
func VerbosityBudget(text string) int {
	switch n := utf8.RuneCountInString(text); {
	case n < 50:
		return 1200
	case n < 150:
		return 800
	default:
		return 400
	}
}
