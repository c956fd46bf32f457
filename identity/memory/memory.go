// Package memory is an in-process [identity.Provider] for development and
// tests. Passwords are stored as argon2id hashes and outbound messages are
// kept in an outbox instead of being delivered.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goGuard/identity"
	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/password"
	"github.com/google/uuid"
)

// Message kinds recorded in the outbox.
const (
	KindEmailVerification = "email_verification"
	KindPasswordReset     = "password_reset"
	KindPhoneCode         = "phone_code"
)

const phoneCodeDigits = 6

// Message is one would-be delivery.
type Message struct {
	Kind string
	To   string
	// Code is set for phone verification codes.
	Code string
	At   time.Time
}

type account struct {
	identity.Account
	passwordHash string
	factors      []identity.PhoneAssertion
}

type phoneChallenge struct {
	phone    string
	codeHash string
}

// Provider implements [identity.Provider] and [identity.PhoneVerifier].
type Provider struct {
	mu       sync.Mutex
	hasher   *password.Argon2
	byID     map[string]*account
	byEmail  map[string]string
	phones   map[string]phoneChallenge
	outbox   []Message
	now      func() time.Time
	failNext error
}

// New returns an empty Provider hashing with cfg.
func New(cfg password.Config) (*Provider, error) {
	hasher, err := password.NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	return &Provider{
		hasher:  hasher,
		byID:    make(map[string]*account),
		byEmail: make(map[string]string),
		phones:  make(map[string]phoneChallenge),
		now:     time.Now,
	}, nil
}

// FailNext makes the next provider call return err. Intended for tests.
func (p *Provider) FailNext(err error) {
	p.mu.Lock()
	p.failNext = err
	p.mu.Unlock()
}

func (p *Provider) takeFailure() error {
	err := p.failNext
	p.failNext = nil
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *Provider) CreateAccount(_ context.Context, email, pw string) (string, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return "", errors.New("identity: invalid email")
	}
	hash, err := p.hasher.Hash(pw)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure(); err != nil {
		return "", err
	}
	if _, ok := p.byEmail[email]; ok {
		return "", identity.ErrAccountExists
	}

	id := uuid.NewString()
	p.byID[id] = &account{
		Account: identity.Account{
			UserID:    id,
			Email:     email,
			CreatedAt: p.now(),
		},
		passwordHash: hash,
	}
	p.byEmail[email] = id
	return id, nil
}

func (p *Provider) VerifyCredentials(_ context.Context, email, pw string) (string, error) {
	p.mu.Lock()
	if err := p.takeFailure(); err != nil {
		p.mu.Unlock()
		return "", err
	}
	id, ok := p.byEmail[normalizeEmail(email)]
	var hash string
	if ok {
		hash = p.byID[id].passwordHash
	}
	p.mu.Unlock()

	if !ok {
		return "", identity.ErrInvalidCredentials
	}
	match, err := p.hasher.Verify(pw, hash)
	if err != nil || !match {
		return "", identity.ErrInvalidCredentials
	}
	return id, nil
}

func (p *Provider) SendEmailVerification(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure(); err != nil {
		return err
	}
	acc, ok := p.byID[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	p.outbox = append(p.outbox, Message{Kind: KindEmailVerification, To: acc.Email, At: p.now()})
	return nil
}

// SendPasswordReset records a reset mail for known addresses and silently
// succeeds for unknown ones.
func (p *Provider) SendPasswordReset(_ context.Context, email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure(); err != nil {
		return err
	}
	email = normalizeEmail(email)
	if _, ok := p.byEmail[email]; ok {
		p.outbox = append(p.outbox, Message{Kind: KindPasswordReset, To: email, At: p.now()})
	}
	return nil
}

func (p *Provider) EnrollSecondFactor(_ context.Context, userID string, assertion identity.PhoneAssertion) error {
	if assertion.PhoneNumber == "" {
		return identity.ErrInvalidAssertion
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure(); err != nil {
		return err
	}
	acc, ok := p.byID[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	acc.factors = append(acc.factors, assertion)
	acc.PhoneNumber = assertion.PhoneNumber
	return nil
}

func (p *Provider) UpdatePassword(_ context.Context, userID, newPassword string) error {
	hash, err := p.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure(); err != nil {
		return err
	}
	acc, ok := p.byID[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	acc.passwordHash = hash
	return nil
}

func (p *Provider) LookupAccount(_ context.Context, userID string) (identity.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	acc, ok := p.byID[userID]
	if !ok {
		return identity.Account{}, identity.ErrUserNotFound
	}
	return acc.Account, nil
}

func (p *Provider) FindByEmail(_ context.Context, email string) (identity.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byEmail[normalizeEmail(email)]
	if !ok {
		return identity.Account{}, identity.ErrUserNotFound
	}
	return p.byID[id].Account, nil
}

// StartPhoneVerification issues a code for phoneNumber and records it in
// the outbox.
func (p *Provider) StartPhoneVerification(_ context.Context, phoneNumber string) (string, error) {
	if phoneNumber == "" {
		return "", identity.ErrInvalidAssertion
	}
	code, err := internal.NewOTP(phoneCodeDigits)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFailure(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	p.phones[id] = phoneChallenge{phone: phoneNumber, codeHash: internal.HashValue(code)}
	p.outbox = append(p.outbox, Message{Kind: KindPhoneCode, To: phoneNumber, Code: code, At: p.now()})
	return id, nil
}

// ConfirmPhoneVerification consumes the challenge on success.
func (p *Provider) ConfirmPhoneVerification(_ context.Context, verificationID, code string) (identity.PhoneAssertion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.phones[verificationID]
	if !ok || ch.codeHash != internal.HashValue(code) {
		return identity.PhoneAssertion{}, identity.ErrInvalidAssertion
	}
	delete(p.phones, verificationID)
	return identity.PhoneAssertion{
		PhoneNumber:    ch.phone,
		VerificationID: verificationID,
		VerifiedAt:     p.now(),
	}, nil
}

// MarkEmailVerified flips the verified flag, standing in for the user
// clicking the verification link.
func (p *Provider) MarkEmailVerified(userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	acc, ok := p.byID[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	acc.EmailVerified = true
	return nil
}

// Outbox returns a copy of every recorded message.
func (p *Provider) Outbox() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.outbox))
	copy(out, p.outbox)
	return out
}

// LastMessage returns the most recent message of kind sent to to.
func (p *Provider) LastMessage(kind, to string) (Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.outbox) - 1; i >= 0; i-- {
		m := p.outbox[i]
		if m.Kind == kind && m.To == to {
			return m, true
		}
	}
	return Message{}, false
}

// Factors returns the enrolled phone assertions of userID.
func (p *Provider) Factors(userID string) []identity.PhoneAssertion {
	p.mu.Lock()
	defer p.mu.Unlock()
	acc, ok := p.byID[userID]
	if !ok {
		return nil
	}
	return append([]identity.PhoneAssertion(nil), acc.factors...)
}

var (
	_ identity.Provider      = (*Provider)(nil)
	_ identity.PhoneVerifier = (*Provider)(nil)
)
