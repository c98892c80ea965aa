package domain

import "time"

type ResourceType string

const (
	ResourceDocument ResourceType = "document"
	ResourceFolder   ResourceType = "folder"
)

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
)

// InvitationTTL is how long an email invitation stays valid.
const InvitationTTL = 7 * 24 * time.Hour

// Invitation grants access to a document or folder to someone identified only by email.
type Invitation struct {
	ID             uint64           `gorm:"primaryKey" json:"id"`
	ResourceType   ResourceType     `gorm:"size:16;not null;index:idx_invitation_resource" json:"resource_type"`
	ResourceID     uint64           `gorm:"not null;index:idx_invitation_resource" json:"resource_id"`
	SenderID       uint64           `gorm:"not null" json:"sender_id"`
	RecipientEmail string           `gorm:"size:255;not null;index" json:"recipient_email"`
	Permission     Permission       `gorm:"size:16;not null" json:"permission"`
	SelectedFiles  []uint64         `gorm:"serializer:json" json:"selected_files,omitempty"`
	Status         InvitationStatus `gorm:"size:16;not null;default:pending" json:"status"`
	ExpiresAt      time.Time        `json:"expires_at"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func NewInvitation(rt ResourceType, resourceID, senderID uint64, email string, p Permission, now time.Time) *Invitation {
	return &Invitation{
		ResourceType:   rt,
		ResourceID:     resourceID,
		SenderID:       senderID,
		RecipientEmail: email,
		Permission:     p,
		Status:         InvitationPending,
		ExpiresAt:      now.Add(InvitationTTL),
	}
}

func (i *Invitation) Pending() bool {
	return i.Status == InvitationPending
}

func (i *Invitation) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
