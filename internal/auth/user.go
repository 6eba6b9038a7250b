package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tobsdb/jsondb/pkg"
	"golang.org/x/crypto/bcrypt"
)

type UserRole int

const (
	UserRoleAdmin UserRole = iota
	UserRoleReadWrite
	UserRoleReadOnly
)

func (r UserRole) String() string {
	switch r {
	case UserRoleAdmin:
		return "admin"
	case UserRoleReadWrite:
		return "read_write"
	case UserRoleReadOnly:
		return "read_only"
	}
	return fmt.Sprintf("UserRole(%d)", int(r))
}

var (
	InsufficientPermissions = errors.New("insufficient permissions")
	InvalidCredentials      = errors.New("invalid credentials")
	ErrUserExists           = errors.New("user already exists")
)

// bcrypt ignores everything past 72 bytes
const max_password_len = 72

type User struct {
	Id       uuid.UUID
	Name     string
	Password []byte
	Role     UserRole
}

func NewUser(name, password string, role UserRole) (*User, error) {
	if name == "" {
		return nil, errors.New("user name is required")
	}
	if len(password) > max_password_len {
		return nil, fmt.Errorf("password is longer than %d bytes", max_password_len)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return &User{uuid.Must(uuid.NewV7()), name, hashed, role}, nil
}

func (u *User) ValidateUser(password string) bool {
	return bcrypt.CompareHashAndPassword(u.Password, []byte(password)) == nil
}

// HasClearance reports whether u may act with role r. Lower roles carry
// more permissions.
func (u *User) HasClearance(r UserRole) bool { return u.Role <= r }

// Users is the registry consulted when a connection authenticates.
type Users struct {
	locker sync.RWMutex
	users  pkg.Map[string, *User]
}

func NewUsers() *Users { return &Users{users: pkg.Map[string, *User]{}} }

func (u *Users) GetLocker() *sync.RWMutex { return &u.locker }

func (u *Users) Add(user *User) (err error) {
	pkg.LockWrap(u, func() {
		if u.users.Has(user.Name) {
			err = fmt.Errorf("%w: %s", ErrUserExists, user.Name)
			return
		}
		u.users.Set(user.Name, user)
	})
	return err
}

// Authenticate returns the user named name when password matches.
func (u *Users) Authenticate(name, password string) (*User, error) {
	user, _ := pkg.RLockResult(u, func() (*User, error) { return u.users.Get(name), nil })
	if user == nil || !user.ValidateUser(password) {
		return nil, InvalidCredentials
	}
	return user, nil
}

func (u *Users) Len() int {
	n, _ := pkg.RLockResult(u, func() (int, error) { return len(u.users), nil })
	return n
}
