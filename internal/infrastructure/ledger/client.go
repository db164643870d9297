// Package ledger is the gateway to the remote account ledger, the external
// service of record for balances. Nothing else in this service talks to it.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/harborpay/transaction-service/internal/infrastructure/observability"
	"github.com/harborpay/transaction-service/internal/models"
	pkgerrors "github.com/harborpay/transaction-service/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Client interface {
	ValidateAccount(ctx context.Context, number string) (*models.AccountSnapshot, error)
	VerifyPin(ctx context.Context, number, pin string) error
	Debit(ctx context.Context, number string, amount decimal.Decimal, description, idempotencyKey string) (*models.LedgerMutationResult, error)
	Credit(ctx context.Context, number string, amount decimal.Decimal, description, idempotencyKey string) (*models.LedgerMutationResult, error)
	GetPrivilege(ctx context.Context, number string) (models.PrivilegeTier, error)
}

type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

type mutationRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
}

func (c *HTTPClient) ValidateAccount(ctx context.Context, number string) (*models.AccountSnapshot, error) {
	var snapshot models.AccountSnapshot
	err := c.call(ctx, "ValidateAccount", http.MethodGet, fmt.Sprintf("/accounts/%s/validation", number), nil, &snapshot, false)
	if err != nil {
		return nil, err
	}
	if !snapshot.Active {
		return nil, fmt.Errorf("%w: %s", pkgerrors.ErrAccountNotActive, number)
	}
	return &snapshot, nil
}

func (c *HTTPClient) VerifyPin(ctx context.Context, number, pin string) error {
	body := map[string]string{"pin": pin}
	return c.call(ctx, "VerifyPin", http.MethodPost, fmt.Sprintf("/accounts/%s/verify-pin", number), body, nil, false)
}

func (c *HTTPClient) Debit(ctx context.Context, number string, amount decimal.Decimal, description, idempotencyKey string) (*models.LedgerMutationResult, error) {
	var result models.LedgerMutationResult
	req := mutationRequest{Amount: amount, Description: description, IdempotencyKey: idempotencyKey}
	if err := c.call(ctx, "Debit", http.MethodPost, fmt.Sprintf("/accounts/%s/debit", number), req, &result, true); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) Credit(ctx context.Context, number string, amount decimal.Decimal, description, idempotencyKey string) (*models.LedgerMutationResult, error) {
	var result models.LedgerMutationResult
	req := mutationRequest{Amount: amount, Description: description, IdempotencyKey: idempotencyKey}
	if err := c.call(ctx, "Credit", http.MethodPost, fmt.Sprintf("/accounts/%s/credit", number), req, &result, true); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) GetPrivilege(ctx context.Context, number string) (models.PrivilegeTier, error) {
	var resp struct {
		Privilege models.PrivilegeTier `json:"privilege"`
	}
	if err := c.call(ctx, "GetPrivilege", http.MethodGet, fmt.Sprintf("/accounts/%s/privilege", number), nil, &resp, false); err != nil {
		return "", err
	}
	return resp.Privilege, nil
}

// call runs one round trip and maps the response onto the domain error
// taxonomy. mutating marks debit/credit: for those a transport failure means
// the outcome is unknown, not that nothing happened.
func (c *HTTPClient) call(ctx context.Context, operation, method, path string, reqBody, respBody any, mutating bool) error {
	tracer := otel.Tracer("ledger-client")
	ctx, span := tracer.Start(ctx, operation)
	span.SetAttributes(attribute.String("ledger.path", path))
	defer span.End()

	var err error
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.LedgerCalls.WithLabelValues(operation, status).Inc()
		observability.LedgerDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	var payload io.Reader
	if reqBody != nil {
		raw, marshalErr := json.Marshal(reqBody)
		if marshalErr != nil {
			err = fmt.Errorf("failed to marshal request body: %w", marshalErr)
			return err
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		err = fmt.Errorf("failed to build request: %w", err)
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, doErr := c.http.Do(req)
	if doErr != nil {
		if mutating {
			err = fmt.Errorf("%w: %s: %v", pkgerrors.ErrLedgerOutcomeUnknown, operation, doErr)
		} else {
			err = fmt.Errorf("%w: %s: %v", pkgerrors.ErrServiceUnavailable, operation, doErr)
		}
		slog.Error("ledger call failed", "operation", operation, "error", doErr)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		if respBody != nil {
			if decodeErr := json.NewDecoder(resp.Body).Decode(respBody); decodeErr != nil {
				err = fmt.Errorf("%w: %s: malformed response: %v", pkgerrors.ErrServiceUnavailable, operation, decodeErr)
				return err
			}
		}
		return nil
	}

	err = c.mapError(operation, resp)
	return err
}

func (c *HTTPClient) mapError(operation string, resp *http.Response) error {
	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &body)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", pkgerrors.ErrAccountNotFound, body.Error)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", pkgerrors.ErrInvalidPIN, body.Error)
	case http.StatusBadRequest:
		switch body.Code {
		case "INSUFFICIENT_FUNDS":
			return fmt.Errorf("%w: %s", pkgerrors.ErrInsufficientFunds, body.Error)
		case "ACCOUNT_NOT_ACTIVE":
			return fmt.Errorf("%w: %s", pkgerrors.ErrAccountNotActive, body.Error)
		case "INVALID_AMOUNT":
			return fmt.Errorf("%w: %s", pkgerrors.ErrInvalidAmount, body.Error)
		default:
			return fmt.Errorf("%w: %s rejected: %s", pkgerrors.ErrServiceUnavailable, operation, string(raw))
		}
	default:
		slog.Error("unexpected ledger response", "operation", operation, "status", resp.StatusCode, "body", string(raw))
		return fmt.Errorf("%w: %s returned status %d", pkgerrors.ErrServiceUnavailable, operation, resp.StatusCode)
	}
}
