package models

import (
	"regexp"
	"strings"
	"time"

	constants "SOSBeacon/pkg/constant"
	"SOSBeacon/pkg/errors"
	"SOSBeacon/pkg/middleware"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	MinPasswordLength = 6
	bcryptCost        = 12
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]{2,}$`)

type User struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	Email        string    `json:"email" gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"size:128;not null"`
	Role         string    `json:"role" gorm:"size:16;not null;default:user"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = constants.RoleUser
	}
	return nil
}

func (u *User) IsAdmin() bool { return u.Role == constants.RoleAdmin }

func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser registers a user with a bcrypt hashed password.
func CreateUser(db *gorm.DB, email, password, role string) (*User, error) {
	email = normalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return nil, errors.Validation("Please provide a valid email address")
	}
	if len(password) < MinPasswordLength {
		return nil, errors.Validation("Password must be at least %d characters", MinPasswordLength)
	}
	if role != constants.RoleUser && role != constants.RoleAdmin {
		return nil, errors.Validation("Unknown role %q", role)
	}
	if existing, err := GetUserByEmail(db, email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, errors.Validation("User with this email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, errors.Internal(err, "failed to hash password")
	}
	user := &User{Email: email, PasswordHash: string(hash), Role: role}
	if err := db.Create(user).Error; err != nil {
		return nil, errors.Internal(err, "failed to create user")
	}
	return user, nil
}

// GetUserByEmail returns nil, nil when no user has the address.
func GetUserByEmail(db *gorm.DB, email string) (*User, error) {
	var user User
	if err := db.Where("email = ?", normalizeEmail(email)).Limit(1).Find(&user).Error; err != nil {
		return nil, errors.Internal(err, "failed to load user")
	}
	if user.ID == "" {
		return nil, nil
	}
	return &user, nil
}

func GetUserByID(db *gorm.DB, id string) (*User, error) {
	var user User
	if err := db.Where("id = ?", id).Limit(1).Find(&user).Error; err != nil {
		return nil, errors.Internal(err, "failed to load user")
	}
	if user.ID == "" {
		return nil, errors.NotFound("User not found")
	}
	return &user, nil
}

// Authenticate checks credentials. Unknown emails and wrong passwords get
// the same error.
func Authenticate(db *gorm.DB, email, password string) (*User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, errors.Validation("Please provide an email and password")
	}
	user, err := GetUserByEmail(db, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.CheckPassword(password) {
		return nil, errors.WithCode(errors.CodeUnauthorized, "Invalid credentials")
	}
	return user, nil
}

// EnsureAdmin creates the bootstrap admin, or promotes an existing account
// with that email. created reports whether a new row was inserted.
func EnsureAdmin(db *gorm.DB, email, password string) (user *User, created bool, err error) {
	user, err = GetUserByEmail(db, email)
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		if !user.IsAdmin() {
			if err := db.Model(user).Update("role", constants.RoleAdmin).Error; err != nil {
				return nil, false, errors.Internal(err, "failed to promote admin")
			}
			user.Role = constants.RoleAdmin
		}
		return user, false, nil
	}
	user, err = CreateUser(db, email, password, constants.RoleAdmin)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// Migrate creates or updates the server tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &Alert{}, &middleware.OperationLog{})
}
