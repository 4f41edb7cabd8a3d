// Package identity is a small in-process people directory with bcrypt
// credentials. It backs the demo deployment and the roster query; a real
// deployment would put an external identity provider behind the same port.
package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/alem-hub/proximity-attendance/internal/domain/attendance"
	"github.com/alem-hub/proximity-attendance/internal/domain/shared"
)

var _ attendance.IdentityProvider = (*Directory)(nil)

// RegisterParams describes a new account.
type RegisterParams struct {
	ID         string          `validate:"required,max=64"`
	Name       string          `validate:"required,max=120"`
	Email      string          `validate:"required,email"`
	Password   string          `validate:"required,min=6,max=72"`
	Role       attendance.Role `validate:"required,oneof=admin student employee"`
	Department string          `validate:"max=120"`
}

type account struct {
	person     attendance.Person
	email      string
	department string
	hash       []byte
}

// Directory holds accounts in registration order.
type Directory struct {
	mu       sync.RWMutex
	accounts []account
	byID     map[string]int
	byEmail  map[string]int

	cost     int
	validate *validator.Validate
}

// Option configures a Directory.
type Option func(*Directory)

// WithBcryptCost overrides the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(d *Directory) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			d.cost = cost
		}
	}
}

// NewDirectory creates an empty directory.
func NewDirectory(opts ...Option) *Directory {
	d := &Directory{
		byID:     make(map[string]int),
		byEmail:  make(map[string]int),
		cost:     bcrypt.DefaultCost,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register adds an account. IDs and emails are unique.
func (d *Directory) Register(ctx context.Context, p RegisterParams) (attendance.Person, error) {
	if err := ctx.Err(); err != nil {
		return attendance.Person{}, err
	}
	p.Email = normalizeEmail(p.Email)
	p.Name = strings.TrimSpace(p.Name)
	if err := d.validate.Struct(p); err != nil {
		return attendance.Person{}, shared.WrapError("identity", "Register", shared.ErrValidation, "invalid account", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), d.cost)
	if err != nil {
		return attendance.Person{}, shared.WrapError("identity", "Register", shared.ErrInvalidInput, "hash password", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[p.ID]; ok {
		return attendance.Person{}, shared.ErrPersonAlreadyExists
	}
	if _, ok := d.byEmail[p.Email]; ok {
		return attendance.Person{}, shared.ErrPersonAlreadyExists
	}

	person := attendance.Person{ID: p.ID, Name: p.Name, Role: p.Role}
	d.accounts = append(d.accounts, account{person: person, email: p.Email, department: p.Department, hash: hash})
	d.byID[p.ID] = len(d.accounts) - 1
	d.byEmail[p.Email] = len(d.accounts) - 1
	return person, nil
}

// Authenticate checks an email and password. Unknown emails and wrong
// passwords produce the same error.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (attendance.Person, error) {
	if err := ctx.Err(); err != nil {
		return attendance.Person{}, err
	}

	d.mu.RLock()
	i, ok := d.byEmail[normalizeEmail(email)]
	var acc account
	if ok {
		acc = d.accounts[i]
	}
	d.mu.RUnlock()

	if !ok {
		return attendance.Person{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return attendance.Person{}, shared.ErrInvalidCredentials
	}
	return acc.person, nil
}

// Lookup returns the person with the given id.
func (d *Directory) Lookup(ctx context.Context, personID string) (attendance.Person, error) {
	if err := ctx.Err(); err != nil {
		return attendance.Person{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	i, ok := d.byID[personID]
	if !ok {
		return attendance.Person{}, shared.ErrPersonNotFound
	}
	return d.accounts[i].person, nil
}

// People lists everyone in registration order.
func (d *Directory) People(ctx context.Context) ([]attendance.Person, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]attendance.Person, len(d.accounts))
	for i, a := range d.accounts {
		out[i] = a.person
	}
	return out, nil
}

// Department returns the department recorded for personID.
func (d *Directory) Department(personID string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i, ok := d.byID[personID]; ok {
		return d.accounts[i].department
	}
	return ""
}
