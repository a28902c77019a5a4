package model

// DateLayout 每日计数使用的 UTC 日期格式
const DateLayout = "2006-01-02"

type DailyCounter struct {
	UserID int64  `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Date   string `gorm:"primaryKey;size:10;index" json:"date"`
	Count  int    `gorm:"column:message_count;not null;default:0" json:"count"`
}

func (DailyCounter) TableName() string {
	return "daily_counters"
}
