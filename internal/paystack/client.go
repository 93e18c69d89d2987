package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrUnreachable indicates the processor could not be reached in time.
	// Retry with backoff; "we don't know" is never treated as "it failed".
	ErrUnreachable = errors.New("payment gateway unreachable")

	// ErrRejected indicates the processor confirmed the payment did not
	// succeed. Terminal, never retried.
	ErrRejected = errors.New("payment rejected by gateway")

	// ErrMalformed indicates the verification response had an unexpected
	// shape. Terminal and surfaced to operators.
	ErrMalformed = errors.New("malformed gateway response")
)

const (
	// DefaultBaseURL is the production Paystack API host.
	DefaultBaseURL = "https://api.paystack.co"

	defaultTimeout = 10 * time.Second
)

// VerifiedPayment is the processor's authoritative account of a payment.
// Amount is in kobo and comes only from the verification response, never from
// client input.
type VerifiedPayment struct {
	Reference  string
	Amount     int64
	PayerEmail string
}

// Client verifies claimed payment references against Paystack's transaction
// verification endpoint using the secret key.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient builds a verification client. An empty baseURL selects the
// production host; the HTTP timeout is bounded at 10s per call.
func NewClient(baseURL, secretKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// verifyResponse mirrors the fields of Paystack's verification payload that
// the ledger cares about.
type verifyResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Status   string `json:"status"`
		Amount   *int64 `json:"amount"`
		Customer struct {
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

// Verify confirms that the referenced payment really happened and returns the
// processor-verified amount. Verifying the same reference twice yields the
// same result or a stable ErrRejected.
func (c *Client) Verify(ctx context.Context, reference string) (VerifiedPayment, error) {
	if reference == "" {
		return VerifiedPayment{}, fmt.Errorf("%w: empty reference", ErrRejected)
	}

	endpoint := fmt.Sprintf("%s/transaction/verify/%s", c.baseURL, url.PathEscape(reference))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return VerifiedPayment{}, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return VerifiedPayment{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return VerifiedPayment{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return VerifiedPayment{}, fmt.Errorf("%w: gateway returned %d", ErrUnreachable, resp.StatusCode)
	}

	var payload verifyResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return VerifiedPayment{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if !payload.Status || payload.Data.Status != "success" {
		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
			return VerifiedPayment{}, fmt.Errorf("%w: reference %s status %q", ErrRejected, reference, payload.Data.Status)
		}
		return VerifiedPayment{}, fmt.Errorf("%w: unexpected status %d", ErrMalformed, resp.StatusCode)
	}

	if payload.Data.Amount == nil || *payload.Data.Amount <= 0 {
		return VerifiedPayment{}, fmt.Errorf("%w: missing or non-positive amount", ErrMalformed)
	}

	return VerifiedPayment{
		Reference:  reference,
		Amount:     *payload.Data.Amount,
		PayerEmail: payload.Data.Customer.Email,
	}, nil
}
