package service

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// 剩余配额不超过该值时附带口令提示
const passwordHintThreshold = 2

// FormatDuration 以"N ч M мин"形式输出，不足一小时时带秒
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	hours := int(d / time.Hour)
	minutes := int(d % time.Hour / time.Minute)
	seconds := int(d % time.Minute / time.Second)

	var parts []string
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%d ч", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%d мин", minutes))
	}
	if hours == 0 && (seconds > 0 || len(parts) == 0) {
		parts = append(parts, fmt.Sprintf("%d сек", seconds))
	}
	return strings.Join(parts, " ")
}

// daysLeft 向上取整的剩余天数
func daysLeft(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	day := 24 * time.Hour
	return int((d + day - 1) / day)
}

func lockedMessage(remaining time.Duration) string {
	return fmt.Sprintf("Слишком много неверных попыток ввода пароля. Попробуйте снова через %s.", FormatDuration(remaining))
}

func blockedMessage(lockout time.Duration) string {
	return fmt.Sprintf("Пароль неверный. Попытки исчерпаны, ввод пароля заблокирован на %s.", FormatDuration(lockout))
}

func wrongPasswordMessage(remaining int) string {
	return fmt.Sprintf("Пароль неверный. Осталось попыток: %d.", remaining)
}

func quotaExceededMessage(limit int) string {
	return fmt.Sprintf("Бесплатный лимит на сегодня исчерпан (%d сообщений). Отправьте пароль доступа или возвращайтесь завтра.", limit)
}

func redeemedMessage(days int, until time.Time) string {
	return fmt.Sprintf("Пароль принят. Доступ открыт на %d дн., до %s UTC.", days, until.Format("02.01.2006 15:04"))
}

func expiryWarningMessage(remaining time.Duration) string {
	return fmt.Sprintf("Ваш доступ истекает через %d дн. Чтобы продлить его, получите новый пароль.", daysLeft(remaining))
}

func lowQuotaMessage(remaining int) string {
	msg := fmt.Sprintf("Осталось бесплатных сообщений на сегодня: %d.", remaining)
	if remaining <= passwordHintThreshold {
		msg += " Чтобы снять ограничение, отправьте пароль доступа."
	}
	return msg
}

func statusSummary(authorized bool, until *time.Time, now time.Time, used, limit int) string {
	if authorized && until != nil {
		return fmt.Sprintf("Доступ активен до %s UTC (осталось %d дн.).", until.Format("02.01.2006 15:04"), daysLeft(until.Sub(now)))
	}
	return fmt.Sprintf("Бесплатный режим: использовано %d из %d сообщений сегодня.", used, limit)
}

// LogoutMessage 退出授权后的提示
func LogoutMessage(loggedOut bool) string {
	if loggedOut {
		return "Вы вышли из платного доступа. Бесплатный лимит снова действует."
	}
	return "Активного доступа нет."
}

// ServiceErrorMessage 存储或生成失败时给用户的提示，原始错误只进日志
func ServiceErrorMessage(err error) string {
	if errors.Is(err, ErrGeneratorFailed) {
		return "Не получилось придумать ответ. Попробуйте еще раз чуть позже."
	}
	return "Сервис временно недоступен. Попробуйте позже."
}
