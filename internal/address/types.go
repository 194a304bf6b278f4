// Package address provides storage for burner addresses and the users that own them.
package address

import (
	"strconv"
	"strings"
	"time"

	"github.com/jarrod-lowe/burner-notify/internal/dynamo"
)

// Status is the lifecycle state of an address.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// AddressItem represents a burner address stored in DynamoDB.
type AddressItem struct {
	ChatID        int64
	Address       string
	Status        Status
	CreatedAt     time.Time
	DeactivatedAt time.Time
}

// PK returns the DynamoDB partition key for this address.
func (a *AddressItem) PK() string {
	return userPK(a.ChatID)
}

// SK returns the DynamoDB sort key for this address.
func (a *AddressItem) SK() string {
	return dynamo.PrefixAddress + a.Address
}

// GSI1PK returns the reverse-lookup key, always lowercase.
func (a *AddressItem) GSI1PK() string {
	return dynamo.PrefixAddress + Normalize(a.Address)
}

// GSI1SK returns the owner reference stored on the reverse-lookup index.
func (a *AddressItem) GSI1SK() string {
	return userPK(a.ChatID)
}

// ClaimPK returns the partition key of the uniqueness claim for this address.
func (a *AddressItem) ClaimPK() string {
	return dynamo.PrefixAddress + Normalize(a.Address)
}

// UserProfile represents a chat user stored in DynamoDB.
type UserProfile struct {
	ChatID    int64
	FirstName string
	Username  string
	CreatedAt time.Time
}

// PK returns the DynamoDB partition key for this profile.
func (u *UserProfile) PK() string {
	return userPK(u.ChatID)
}

// SK returns the DynamoDB sort key for this profile.
func (u *UserProfile) SK() string {
	return SKProfile
}

// Owner is the result of a reverse lookup from address to user.
type Owner struct {
	ChatID  int64
	UserID  string
	Address string
	Status  Status
}

// Normalize lowercases and trims an address for storage and lookup.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func userPK(chatID int64) string {
	return dynamo.PrefixUser + strconv.FormatInt(chatID, 10)
}
