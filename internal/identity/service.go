package identity

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/datahub-africa/datahub_pay/internal/ledger"
)

const fundingBankName = "Wema Bank"

// Service manages the identity lifecycle. Registering a user also opens the
// zero-balance ledger account with its funding destination, so a principal
// and its wallet are born together.
type Service struct {
	repo  Repository
	store ledger.Store
}

// NewService creates a new identity service.
func NewService(repo Repository, store ledger.Store) *Service {
	return &Service{repo: repo, store: store}
}

// Register creates a user with a hashed PIN and provisions the ledger account.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	if len(reg.PIN) < 4 {
		return User{}, errors.New("PIN must be at least 4 digits")
	}
	email := strings.ToLower(strings.TrimSpace(reg.Email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, errors.New("a valid email is required")
	}
	displayName := strings.TrimSpace(reg.DisplayName)
	if displayName == "" {
		return User{}, errors.New("display name is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.PIN), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:          uuid.New().String(),
		Email:       email,
		Phone:       strings.TrimSpace(reg.Phone),
		DisplayName: displayName,
		PINHash:     hash,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	account := ledger.Account{
		ID: user.ID,
		FundingDestination: ledger.FundingDestination{
			BankName:      fundingBankName,
			AccountNumber: allocateAccountNumber(),
			AccountName:   "DATAHUB - " + displayName,
		},
		CreatedAt: user.CreatedAt,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		// Unwind the user row so the email is free to register again and no
		// principal exists without a wallet.
		if delErr := s.repo.Delete(ctx, user.ID); delErr != nil {
			return User{}, fmt.Errorf("provision ledger account: %w (user cleanup failed: %v)", err, delErr)
		}
		return User{}, fmt.Errorf("provision ledger account: %w", err)
	}

	return user, nil
}

// Authenticate verifies the email/PIN pair.
func (s *Service) Authenticate(ctx context.Context, email, pin string) (User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PINHash, []byte(pin)); err != nil {
		return User{}, errors.New("invalid PIN")
	}
	return user, nil
}

// allocateAccountNumber derives a 10-digit virtual account number. Uniqueness
// follows from the uuid entropy; collisions surface as insert errors upstream.
func allocateAccountNumber() string {
	id := uuid.New()
	n := binary.BigEndian.Uint64(id[:8]) % 10_000_000_000
	return fmt.Sprintf("%010d", n)
}
