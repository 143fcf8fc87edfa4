package db

import "time"

// User - пользователи, прошедшие регистрацию через бота
type User struct {
	TelegramID   int64 `gorm:"primaryKey"`
	Username     string
	FullName     string
	LanguageCode string
	Email        string
	XuiClientID  string
	CreatedAt    time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}

// Subscription - подписки
//
// Ссылка подписки здесь не хранится: она выводится из
// (адрес панели, inbound id, uuid клиента) при каждом чтении.
type Subscription struct {
	ID         uint      `gorm:"primaryKey"`
	TelegramID int64     `gorm:"uniqueIndex;not null"`
	ExpiresAt  time.Time `gorm:"not null"`
	UUID       string    `gorm:"not null"`
	AutoRenew  bool      `gorm:"default:false"`

	// Relations
	User User `gorm:"foreignKey:TelegramID;references:TelegramID"`
}

// SubscriptionLog - журнал действий над подписками (только запись)
type SubscriptionLog struct {
	ID         uint      `gorm:"primaryKey"`
	TelegramID int64     `gorm:"not null"`
	Action     string    `gorm:"check:action IN ('renewed','deleted')"`
	Timestamp  time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}
