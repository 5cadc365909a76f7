package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/mmdatafocus/fleet_backend/utils"
	"gorm.io/gorm"
)

// User is an operator. The id is what uploaded_by and the resolution journal record.
type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Password  string    `gorm:"size:255;not null" json:"password"`
	IsActive  *bool     `gorm:"not null" json:"is_active"`
	Role      UserRole  `gorm:"size:1;default:O" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

/*
caches:
	User:$username
	Token:$token -> username
*/

const userCacheLifespan = time.Hour

var ErrInvalidCredentials = errors.New("invalid username or password")
var ErrUserDisabled = errors.New("user is disabled")

type LoginInfo struct {
	Token string   `json:"token"`
	Jwt   string   `json:"jwt"`
	Name  string   `json:"name"`
	Role  UserRole `json:"role"`
}

func (user User) RemoveInstanceRedis() error {
	return config.RemoveRedisKey("User:" + user.Username)
}

// GetUserByUsername reads redis first, then the database, caching the result.
func GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*User, error) {
	if username == "" {
		return nil, errors.New("username is required")
	}

	var user User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return nil, err
	}
	if exists {
		return &user, nil
	}

	if err := db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if err := config.SetRedisObject("User:"+username, user, userCacheLifespan); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpsertOperator creates the user or resets its name, password and role.
func UpsertOperator(ctx context.Context, db *gorm.DB, username, name, password string, role UserRole) (*User, bool, error) {
	hashed, err := utils.HashPassword(password)
	if err != nil {
		return nil, false, err
	}

	var existing User
	err = db.WithContext(ctx).Model(&User{}).Where("username = ?", username).First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		user := User{
			Username: username,
			Name:     name,
			Password: string(hashed),
			IsActive: utils.NewTrue(),
			Role:     role,
		}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, false, err
		}
		return &user, true, nil
	}

	if err := db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
		"name":      name,
		"password":  string(hashed),
		"role":      role,
		"is_active": true,
	}).Error; err != nil {
		return nil, false, err
	}
	if err := existing.RemoveInstanceRedis(); err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

// Login checks the credentials and opens a redis session; the JWT is returned for clients
// that prefer the Authorization header.
func Login(ctx context.Context, db *gorm.DB, username string, password string, lifespan time.Duration) (*LoginInfo, error) {
	user, err := GetUserByUsername(ctx, db, username)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := utils.ComparePassword(user.Password, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.IsActive == nil || !*user.IsActive {
		return nil, ErrUserDisabled
	}

	jwtToken, err := utils.JwtGenerate(user.ID, user.Username, string(user.Role))
	if err != nil {
		return nil, err
	}
	token := uuid.NewString()
	if err := config.SetRedisValue("Token:"+token, user.Username, lifespan); err != nil {
		return nil, err
	}
	return &LoginInfo{Token: token, Jwt: jwtToken, Name: user.Name, Role: user.Role}, nil
}

// Logout drops the session token carried by the request, if any.
func Logout(ctx context.Context) (bool, error) {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok || token == "" {
		return false, nil
	}
	if err := config.RemoveRedisKey("Token:" + token); err != nil {
		return false, err
	}
	return true, nil
}
