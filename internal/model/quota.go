package model

import "time"

// UserQuota is the per-user admission accounting
type UserQuota struct {
	UserID            string    `json:"userId"`
	Concurrent        int       `json:"concurrent"`
	HourlyCount       int       `json:"hourlyCount"`
	HourlyWindowStart time.Time `json:"hourlyWindowStart"`
}
