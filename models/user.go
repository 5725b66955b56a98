package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/erpweb/erp_backend/config"
	"github.com/erpweb/erp_backend/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrRequiredUserFields = errors.New("username, email and password are required")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrNothingToUpdate    = errors.New("nothing to update")
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username"`
	Email     string    `gorm:"size:100;not null;unique" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UpdateUserInput fields left nil keep their current value.
type UpdateUserInput struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// UserInfo is the token holder's identity returned by auth endpoints.
type UserInfo struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type LoginInfo struct {
	Token string   `json:"token"`
	User  UserInfo `json:"user"`
}

func (u User) Info() UserInfo {
	return UserInfo{ID: u.ID, Username: u.Username, Email: u.Email}
}

func (input *NewUser) validate(ctx context.Context) error {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)
	if input.Username == "" || input.Email == "" || input.Password == "" {
		return ErrRequiredUserFields
	}
	if !utils.IsValidEmail(input.Email) {
		return ErrInvalidEmail
	}
	if err := utils.ValidateUnique[User](ctx, "username", input.Username, 0, utils.ErrorDuplicateUsername); err != nil {
		return err
	}
	return utils.ValidateUnique[User](ctx, "email", input.Email, 0, utils.ErrorDuplicateEmail)
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := User{
		Username: input.Username,
		Email:    input.Email,
		Password: hashed,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Register creates the account and signs a token for it.
func Register(ctx context.Context, input *NewUser) (*User, string, error) {
	user, err := CreateUser(ctx, input)
	if err != nil {
		return nil, "", err
	}
	token, err := utils.JwtGenerate(user.ID, user.Username)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Login answers ErrInvalidCredentials for both unknown users and wrong passwords.
func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {
	db := config.GetDB()

	var user User
	err := db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).Take(&user).Error
	if isRecordNotFound(err) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !utils.PasswordMatches(user.Password, password) {
		return nil, ErrInvalidCredentials
	}

	token, err := utils.JwtGenerate(user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &LoginInfo{Token: token, User: user.Info()}, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {
	return utils.FetchModel[User](ctx, id)
}

func GetUsers(ctx context.Context) ([]*User, error) {
	return utils.FetchAllModels[User](ctx, "id")
}

func UpdateUser(ctx context.Context, id int, input *UpdateUserInput) (*User, error) {
	username := utils.NilIfBlank(input.Username)
	email := utils.NilIfBlank(input.Email)
	password := input.Password
	if password != nil && *password == "" {
		password = nil
	}
	if username == nil && email == nil && password == nil {
		return nil, ErrNothingToUpdate
	}

	user, err := GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if username != nil {
		if err := utils.ValidateUnique[User](ctx, "username", *username, id, utils.ErrorDuplicateUsername); err != nil {
			return nil, err
		}
		updates["username"] = *username
	}
	if email != nil {
		if !utils.IsValidEmail(*email) {
			return nil, ErrInvalidEmail
		}
		if err := utils.ValidateUnique[User](ctx, "email", *email, id, utils.ErrorDuplicateEmail); err != nil {
			return nil, err
		}
		updates["email"] = *email
	}
	if password != nil {
		hashed, err := utils.HashPassword(*password)
		if err != nil {
			return nil, err
		}
		updates["password"] = hashed
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, err
	}
	return GetUser(ctx, id)
}

// ResetPassword sets a new password for username, creating the account
// with email when it does not exist yet. It reports whether it created one.
func ResetPassword(ctx context.Context, username, email, password string) (*User, bool, error) {
	db := config.GetDB()
	var user User
	err := db.WithContext(ctx).Where("username = ?", username).Take(&user).Error
	if isRecordNotFound(err) {
		created, err := CreateUser(ctx, &NewUser{Username: username, Email: email, Password: password})
		return created, err == nil, err
	}
	if err != nil {
		return nil, false, err
	}
	updated, err := UpdateUser(ctx, user.ID, &UpdateUserInput{Password: &password})
	return updated, false, err
}

func DeleteUser(ctx context.Context, id int) (*User, error) {
	user, err := GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}
