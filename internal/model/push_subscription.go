package model

import "time"

// PushSubscription holds the information for a browser push subscription
// used to alert operators about machines that need restocking.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	MachineIDs []string `gorm:"-"`
}

// SubscriptionMachine links a subscription to one machine it watches.
type SubscriptionMachine struct {
	Endpoint  string `gorm:"primaryKey"`
	MachineID string `gorm:"primaryKey;size:36;index"`
}
