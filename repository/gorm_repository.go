package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/avelkar/aria/backend/models"
	"gorm.io/gorm"
)

type GORMRepository struct {
	db *gorm.DB
}

func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{db: db}
}

// AutoMigrate runs database migrations
func (r *GORMRepository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&models.User{},
		&models.Preference{},
		&models.CalendarToken{},
		&models.RefreshToken{},
	)
}

// User operations
func (r *GORMRepository) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		slog.Error("Failed to create user", "error", err)
		return err
	}
	slog.Info("User created", "user_id", user.ID, "username", user.Username)
	return nil
}

func (r *GORMRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get user by email", "error", err, "email", email)
		return nil, err
	}
	return &user, nil
}

func (r *GORMRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get user by username", "error", err, "username", username)
		return nil, err
	}
	return &user, nil
}

func (r *GORMRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get user by ID", "error", err, "user_id", id)
		return nil, err
	}
	return &user, nil
}

// ProfileUpdate is an explicit optional-field patch: a nil field means "leave
// unchanged". Absence is never treated as falsy.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Address   *string
	City      *string
	State     *string
	Zip       *string
	Latitude  *float64
	Longitude *float64
	Timezone  *string
	DSTStart  *time.Time
	DSTEnd    *time.Time
	Gender    *string
	AvatarURL *string
}

func (u *ProfileUpdate) columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if u.FirstName != nil {
		cols["first_name"] = *u.FirstName
	}
	if u.LastName != nil {
		cols["last_name"] = *u.LastName
	}
	if u.Phone != nil {
		cols["phone"] = *u.Phone
	}
	if u.Address != nil {
		cols["address"] = *u.Address
	}
	if u.City != nil {
		cols["city"] = *u.City
	}
	if u.State != nil {
		cols["state"] = *u.State
	}
	if u.Zip != nil {
		cols["zip"] = *u.Zip
	}
	if u.Latitude != nil {
		cols["latitude"] = *u.Latitude
	}
	if u.Longitude != nil {
		cols["longitude"] = *u.Longitude
	}
	if u.Timezone != nil {
		cols["timezone"] = *u.Timezone
	}
	if u.DSTStart != nil {
		cols["dst_start"] = *u.DSTStart
	}
	if u.DSTEnd != nil {
		cols["dst_end"] = *u.DSTEnd
	}
	if u.Gender != nil {
		cols["gender"] = *u.Gender
	}
	if u.AvatarURL != nil {
		cols["avatar_url"] = *u.AvatarURL
	}
	return cols
}

func (r *GORMRepository) UpdateProfile(ctx context.Context, userID string, update *ProfileUpdate) error {
	cols := update.columns()
	if len(cols) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(cols).Error; err != nil {
		slog.Error("Failed to update profile", "error", err, "user_id", userID)
		return err
	}
	slog.Info("Profile updated", "user_id", userID, "fields", len(cols))
	return nil
}

func (r *GORMRepository) DeleteUser(ctx context.Context, userID string) error {
	// Hard delete; the dependent preference, calendar token and refresh token
	// rows cascade with the user row.
	if err := r.db.WithContext(ctx).Unscoped().Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
		slog.Error("Failed to delete user refresh tokens", "error", err, "user_id", userID)
		return err
	}
	if err := r.db.WithContext(ctx).Unscoped().Where("user_id = ?", userID).Delete(&models.CalendarToken{}).Error; err != nil {
		slog.Error("Failed to delete calendar token", "error", err, "user_id", userID)
		return err
	}
	if err := r.db.WithContext(ctx).Unscoped().Where("user_id = ?", userID).Delete(&models.Preference{}).Error; err != nil {
		slog.Error("Failed to delete preference", "error", err, "user_id", userID)
		return err
	}
	if err := r.db.WithContext(ctx).Unscoped().Where("id = ?", userID).Delete(&models.User{}).Error; err != nil {
		slog.Error("Failed to delete user", "error", err, "user_id", userID)
		return err
	}
	slog.Info("User deleted", "user_id", userID)
	return nil
}

// Preference operations
func (r *GORMRepository) CreatePreference(ctx context.Context, pref *models.Preference) error {
	if err := r.db.WithContext(ctx).Create(pref).Error; err != nil {
		slog.Error("Failed to create preference", "error", err, "user_id", pref.UserID)
		return err
	}
	return nil
}

func (r *GORMRepository) GetPreference(ctx context.Context, userID string) (*models.Preference, error) {
	var pref models.Preference
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&pref).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get preference", "error", err, "user_id", userID)
		return nil, err
	}
	return &pref, nil
}

// SelectedPersona returns the user's currently selected persona key, or ""
// when the user has no preference row.
func (r *GORMRepository) SelectedPersona(ctx context.Context, userID string) (string, error) {
	pref, err := r.GetPreference(ctx, userID)
	if err != nil {
		return "", err
	}
	if pref == nil {
		return "", nil
	}
	return pref.Persona, nil
}

// PreferenceUpdate patches the UI preference; nil means "leave unchanged".
type PreferenceUpdate struct {
	ThemeMode *string
	Persona   *string
}

func (r *GORMRepository) UpdatePreference(ctx context.Context, userID string, update *PreferenceUpdate) error {
	cols := map[string]interface{}{}
	if update.ThemeMode != nil {
		cols["theme_mode"] = *update.ThemeMode
	}
	if update.Persona != nil {
		cols["persona"] = *update.Persona
	}
	if len(cols) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(&models.Preference{}).Where("user_id = ?", userID).Updates(cols).Error; err != nil {
		slog.Error("Failed to update preference", "error", err, "user_id", userID)
		return err
	}
	slog.Info("Preference updated", "user_id", userID)
	return nil
}

// Calendar token operations
func (r *GORMRepository) CreateCalendarToken(ctx context.Context, token *models.CalendarToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		slog.Error("Failed to create calendar token", "error", err, "user_id", token.UserID)
		return err
	}
	return nil
}

func (r *GORMRepository) GetCalendarToken(ctx context.Context, userID string) (*models.CalendarToken, error) {
	var token models.CalendarToken
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&token).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get calendar token", "error", err, "user_id", userID)
		return nil, err
	}
	return &token, nil
}

// ReplaceCalendarToken overwrites the stored token pair wholesale; the token
// row is never appended to.
func (r *GORMRepository) ReplaceCalendarToken(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error {
	cols := map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_at":    expiresAt,
	}
	if err := r.db.WithContext(ctx).Model(&models.CalendarToken{}).Where("user_id = ?", userID).Updates(cols).Error; err != nil {
		slog.Error("Failed to replace calendar token", "error", err, "user_id", userID)
		return err
	}
	slog.Info("Calendar token replaced", "user_id", userID, "expires_at", expiresAt)
	return nil
}

// Session token operations
func (r *GORMRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		slog.Error("Failed to create refresh token", "error", err)
		return err
	}
	return nil
}

func (r *GORMRepository) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var refreshToken models.RefreshToken
	if err := r.db.WithContext(ctx).Where("token = ? AND expires_at > ?", token, time.Now()).First(&refreshToken).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get refresh token", "error", err)
		return nil, err
	}
	return &refreshToken, nil
}

func (r *GORMRepository) DeleteRefreshToken(ctx context.Context, token string) error {
	if err := r.db.WithContext(ctx).Where("token = ?", token).Delete(&models.RefreshToken{}).Error; err != nil {
		slog.Error("Failed to delete refresh token", "error", err)
		return err
	}
	return nil
}

func (r *GORMRepository) DeleteAllUserTokens(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
		slog.Error("Failed to delete user refresh tokens", "error", err, "user_id", userID)
		return err
	}
	return nil
}
