package funding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/datahub-africa/datahub_pay/internal/ledger"
	"github.com/datahub-africa/datahub_pay/internal/notification"
	"github.com/datahub-africa/datahub_pay/internal/paystack"
)

const (
	defaultVerifyAttempts = 3
	defaultVerifyBackoff  = 200 * time.Millisecond
)

// Verifier confirms a claimed payment reference with the external processor.
type Verifier interface {
	Verify(ctx context.Context, reference string) (paystack.VerifiedPayment, error)
}

// Service runs the wallet-funding handshake: verify the reference with the
// gateway first, then credit the ledger with the gateway-verified amount. The
// engine is kept free of network I/O; all gateway talk happens here.
type Service struct {
	engine   *ledger.Engine
	verifier Verifier
	notifier notification.Notifier

	verifyAttempts int
	verifyBackoff  time.Duration
}

// NewService builds a funding service. The notifier may be nil.
func NewService(engine *ledger.Engine, verifier Verifier, notifier notification.Notifier) (*Service, error) {
	if engine == nil {
		return nil, fmt.Errorf("ledger engine is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("payment verifier is required")
	}
	return &Service{
		engine:         engine,
		verifier:       verifier,
		notifier:       notifier,
		verifyAttempts: defaultVerifyAttempts,
		verifyBackoff:  defaultVerifyBackoff,
	}, nil
}

// Fund verifies the payment reference and credits the wallet once. The
// credited amount comes only from the verification response; any amount the
// client claims is ignored. Replaying a reference credits at most once and
// surfaces ledger.ErrDuplicateReference.
func (s *Service) Fund(ctx context.Context, accountID, reference string) (ledger.Entry, error) {
	if reference == "" {
		return ledger.Entry{}, ledger.ErrMissingReference
	}

	payment, err := s.verify(ctx, reference)
	if err != nil {
		return ledger.Entry{}, err
	}

	metadata := map[string]string{"method": "card"}
	if payment.PayerEmail != "" {
		metadata["payer_email"] = payment.PayerEmail
	}

	entry, err := s.engine.Credit(ctx, accountID, ledger.CategoryWalletFund, payment.Amount, metadata, reference)
	if err != nil {
		return ledger.Entry{}, err
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindWalletFunded,
			Destination: accountID,
			Body:        fmt.Sprintf("Wallet funded with %d kobo (ref %s)", payment.Amount, reference),
		})
	}

	return entry, nil
}

// verify retries only unreachable outcomes, with doubling backoff. Rejected
// and malformed verdicts are terminal and returned as-is.
func (s *Service) verify(ctx context.Context, reference string) (paystack.VerifiedPayment, error) {
	backoff := s.verifyBackoff

	var lastErr error
	for attempt := 0; attempt < s.verifyAttempts; attempt++ {
		payment, err := s.verifier.Verify(ctx, reference)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, paystack.ErrUnreachable) {
			return paystack.VerifiedPayment{}, err
		}
		lastErr = err

		if attempt == s.verifyAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return paystack.VerifiedPayment{}, fmt.Errorf("%w: %v", paystack.ErrUnreachable, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return paystack.VerifiedPayment{}, lastErr
}
