package domain

import (
	"strings"
	"time"
)

// User is a wallet address seen by the system. Users are created on first
// connection and never deleted.
type User struct {
	Address              string    `json:"address"`
	FID                  int64     `json:"fid,omitempty"`
	FirstSeen            time.Time `json:"firstSeen"`
	LastSeen             time.Time `json:"lastSeen"`
	NotificationsEnabled bool      `json:"notificationsEnabled"`
}

// AdminUserView is the user shape returned by the admin listing.
// The notification flag is not exposed.
type AdminUserView struct {
	Address   string    `json:"address"`
	FID       int64     `json:"fid,omitempty"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// AdminView strips fields not exposed to the admin listing
func (u *User) AdminView() AdminUserView {
	return AdminUserView{
		Address:   u.Address,
		FID:       u.FID,
		FirstSeen: u.FirstSeen,
		LastSeen:  u.LastSeen,
	}
}

// NormalizeAddress canonicalizes a wallet address. One User exists per
// normalized address.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
