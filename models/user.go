package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID        string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Email     string         `gorm:"uniqueIndex;not null" json:"email"`
	Username  string         `gorm:"uniqueIndex;not null" json:"username"`
	Password  string         `gorm:"size:255" json:"-"` // Hashed password (excluded from JSON)
	FirstName string         `gorm:"size:255" json:"first_name,omitempty"`
	LastName  string         `gorm:"size:255" json:"last_name,omitempty"`
	Phone     string         `gorm:"size:50" json:"phone,omitempty"`
	Address   string         `gorm:"size:500" json:"address,omitempty"`
	City      string         `gorm:"size:255" json:"city,omitempty"`
	State     string         `gorm:"size:100" json:"state,omitempty"`
	Zip       string         `gorm:"size:20" json:"zip,omitempty"`
	Latitude  float64        `json:"latitude,omitempty"`
	Longitude float64        `json:"longitude,omitempty"`
	Timezone  string         `gorm:"size:100" json:"timezone,omitempty"`
	DSTStart  *time.Time     `json:"dst_start,omitempty"`
	DSTEnd    *time.Time     `json:"dst_end,omitempty"`
	Gender    string         `gorm:"size:50" json:"gender,omitempty"`
	AvatarURL string         `gorm:"size:500" json:"avatar_url,omitempty"`
	IsAdmin   bool           `gorm:"default:false" json:"is_admin"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Preference    *Preference    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"preference,omitempty"`
	CalendarToken *CalendarToken `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	RefreshTokens []RefreshToken `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// DisplayName is the name shown in chat rooms.
func (u *User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Username
}

// Preference holds the per-user UI settings driving the chat experience.
type Preference struct {
	ID        string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID    string         `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	ThemeMode string         `gorm:"size:20;default:'light';check:theme_mode IN ('light', 'dark')" json:"theme_mode"`
	Persona   string         `gorm:"size:100;not null" json:"persona"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// CalendarToken is the user's OAuth access/refresh token pair for the external
// calendar integration. It is created at signup in the sentinel unset state
// (empty tokens, zero expiry) and replaced wholesale on each successful refresh.
type CalendarToken struct {
	ID           string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID       string         `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	AccessToken  string         `gorm:"size:2048" json:"-"`
	RefreshToken string         `gorm:"size:2048" json:"-"`
	ExpiresAt    time.Time      `json:"expires_at"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// IsSet reports whether the token pair has ever left the sentinel unset state.
func (t *CalendarToken) IsSet() bool {
	return t.AccessToken != "" || t.RefreshToken != ""
}

type RefreshToken struct {
	ID        string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID    string         `gorm:"type:uuid;not null;index" json:"user_id"`
	Token     string         `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time      `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
