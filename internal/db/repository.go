package db

import (
	"errors"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(dsn string) (*Repository, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	return &Repository{db: db}, nil
}

func (r *Repository) DB() *gorm.DB {
	return r.db
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&User{},
		&Subscription{},
		&SubscriptionLog{},
	)
}

// CreateUserIfAbsent сохраняет пользователя при первой регистрации.
// Нарушение уникальности telegram_id - это не ошибка, а признак
// повторной регистрации: возвращается created=false.
func (r *Repository) CreateUserIfAbsent(user *User) (created bool, err error) {
	result := r.db.Create(user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) || isUniqueViolation(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return true, nil
}

// isUniqueViolation - sqlite и postgres сообщают о нарушении уникальности
// разными типами, поэтому дополнительно смотрим на текст ошибки.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

func (r *Repository) GetUser(telegramID int64) (*User, error) {
	var user User
	result := r.db.First(&user, "telegram_id = ?", telegramID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &user, nil
}

// UpsertSubscription создает либо обновляет подписку пользователя
// и пишет запись "renewed" в журнал.
func (r *Repository) UpsertSubscription(telegramID int64, expiresAt time.Time, clientUUID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var sub Subscription
		result := tx.Where("telegram_id = ?", telegramID).First(&sub)
		if result.Error != nil {
			if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return result.Error
			}
			sub = Subscription{TelegramID: telegramID}
		}

		sub.ExpiresAt = expiresAt
		sub.UUID = clientUUID
		if err := tx.Save(&sub).Error; err != nil {
			return err
		}

		return tx.Create(&SubscriptionLog{TelegramID: telegramID, Action: "renewed"}).Error
	})
}

func (r *Repository) GetSubscription(telegramID int64) (*Subscription, error) {
	var sub Subscription
	result := r.db.Where("telegram_id = ?", telegramID).First(&sub)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &sub, nil
}

// RenewSubscription продлевает подписку на 30 дней от текущего момента.
// Если подписки нет - тихий no-op, журнал не трогаем.
func (r *Repository) RenewSubscription(telegramID int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var sub Subscription
		result := tx.Where("telegram_id = ?", telegramID).First(&sub)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return nil
			}
			return result.Error
		}

		sub.ExpiresAt = time.Now().UTC().Add(30 * 24 * time.Hour)
		if err := tx.Save(&sub).Error; err != nil {
			return err
		}

		return tx.Create(&SubscriptionLog{TelegramID: telegramID, Action: "renewed"}).Error
	})
}

// DeleteSubscription удаляет локальную запись и пишет "deleted" в журнал.
// Клиент на стороне панели здесь не трогается - этим занимается вызывающий.
func (r *Repository) DeleteSubscription(telegramID int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("telegram_id = ?", telegramID).Delete(&Subscription{}).Error; err != nil {
			return err
		}
		return tx.Create(&SubscriptionLog{TelegramID: telegramID, Action: "deleted"}).Error
	})
}

// ListExpiringWithin возвращает подписки с expires_at не позже чем через days дней.
func (r *Repository) ListExpiringWithin(days int) ([]Subscription, error) {
	threshold := time.Now().UTC().Add(time.Duration(days) * 24 * time.Hour)

	var subs []Subscription
	result := r.db.Where("expires_at <= ?", threshold).Find(&subs)
	if result.Error != nil {
		return nil, result.Error
	}
	return subs, nil
}

// ListFiltered возвращает подписки с фильтром по подстроке username
// (без учета регистра) и, опционально, только активные.
func (r *Repository) ListFiltered(username string, activeOnly bool) ([]Subscription, error) {
	query := r.db.Model(&Subscription{}).
		Joins("JOIN users ON users.telegram_id = subscriptions.telegram_id").
		Preload("User")

	if username != "" {
		query = query.Where("LOWER(users.username) LIKE ?", "%"+strings.ToLower(username)+"%")
	}
	if activeOnly {
		query = query.Where("subscriptions.expires_at > ?", time.Now().UTC())
	}

	var subs []Subscription
	result := query.Find(&subs)
	if result.Error != nil {
		return nil, result.Error
	}
	return subs, nil
}

// IsActive проверяет подписку по uuid клиента панели.
func (r *Repository) IsActive(clientUUID string) (bool, error) {
	var sub Subscription
	result := r.db.Where("uuid = ?", clientUUID).First(&sub)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, result.Error
	}
	return sub.ExpiresAt.After(time.Now().UTC()), nil
}

// ExpiryHistogram группирует даты окончания подписок по календарным дням.
// Метки отсортированы по возрастанию, counts[i] соответствует labels[i].
func (r *Repository) ExpiryHistogram() (labels []string, counts []int, err error) {
	var subs []Subscription
	if result := r.db.Find(&subs); result.Error != nil {
		return nil, nil, result.Error
	}

	buckets := make(map[string]int)
	for _, sub := range subs {
		day := sub.ExpiresAt.UTC().Format("2006-01-02")
		buckets[day]++
	}

	labels = make([]string, 0, len(buckets))
	for day := range buckets {
		labels = append(labels, day)
	}
	sort.Strings(labels)

	counts = make([]int, len(labels))
	for i, day := range labels {
		counts[i] = buckets[day]
	}
	return labels, counts, nil
}
