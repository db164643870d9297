package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/harborpay/transaction-service/internal/models"
	pkgerrors "github.com/harborpay/transaction-service/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_ValidateAccount(t *testing.T) {
	t.Run("active account", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/accounts/ACC001/validation", r.URL.Path)
			json.NewEncoder(w).Encode(models.AccountSnapshot{
				AccountNumber: "ACC001",
				Balance:       decimal.NewFromInt(1000),
				Privilege:     models.PrivilegeGold,
				Active:        true,
			})
		}))
		defer srv.Close()

		client := NewHTTPClient(srv.URL, time.Second)
		snapshot, err := client.ValidateAccount(context.Background(), "ACC001")
		require.NoError(t, err)
		assert.Equal(t, "ACC001", snapshot.AccountNumber)
		assert.True(t, snapshot.Balance.Equal(decimal.NewFromInt(1000)))
		assert.Equal(t, models.PrivilegeGold, snapshot.Privilege)
	})

	t.Run("inactive account", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(models.AccountSnapshot{AccountNumber: "ACC002", Active: false})
		}))
		defer srv.Close()

		client := NewHTTPClient(srv.URL, time.Second)
		_, err := client.ValidateAccount(context.Background(), "ACC002")
		assert.ErrorIs(t, err, pkgerrors.ErrAccountNotActive)
	})

	t.Run("not found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "no such account"})
		}))
		defer srv.Close()

		client := NewHTTPClient(srv.URL, time.Second)
		_, err := client.ValidateAccount(context.Background(), "MISSING")
		assert.ErrorIs(t, err, pkgerrors.ErrAccountNotFound)
	})

	t.Run("ledger down", func(t *testing.T) {
		srv := httptest.NewServer(nil)
		srv.Close()

		client := NewHTTPClient(srv.URL, time.Second)
		_, err := client.ValidateAccount(context.Background(), "ACC001")
		assert.ErrorIs(t, err, pkgerrors.ErrServiceUnavailable)
		assert.NotErrorIs(t, err, pkgerrors.ErrLedgerOutcomeUnknown)
	})
}

func TestHTTPClient_VerifyPin(t *testing.T) {
	t.Run("correct pin", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/accounts/ACC001/verify-pin", r.URL.Path)
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "1234", body["pin"])
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		client := NewHTTPClient(srv.URL, time.Second)
		assert.NoError(t, client.VerifyPin(context.Background(), "ACC001", "1234"))
	})

	t.Run("wrong pin", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "pin mismatch"})
		}))
		defer srv.Close()

		client := NewHTTPClient(srv.URL, time.Second)
		err := client.VerifyPin(context.Background(), "ACC001", "9999")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidPIN)
	})
}

func TestHTTPClient_Debit(t *testing.T) {
	t.Run("successful debit carries idempotency key", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/accounts/ACC001/debit", r.URL.Path)
			var req mutationRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "key-42", req.IdempotencyKey)
			assert.True(t, req.Amount.Equal(decimal.NewFromInt(500)))
			json.NewEncoder(w).Encode(models.LedgerMutationResult{
				AccountNumber: "ACC001",
				NewBalance:    decimal.NewFromInt(1000),
			})
		}))
		defer srv.Close()

		client := NewHTTPClient(srv.URL, time.Second)
		result, err := client.Debit(context.Background(), "ACC001", decimal.NewFromInt(500), "rent", "key-42")
		require.NoError(t, err)
		assert.True(t, result.NewBalance.Equal(decimal.NewFromInt(1000)))
	})

	t.Run("insufficient funds", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(errorBody{Code: "INSUFFICIENT_FUNDS", Error: "balance too low"})
		}))
		defer srv.Close()

		client := NewHTTPClient(srv.URL, time.Second)
		_, err := client.Debit(context.Background(), "ACC001", decimal.NewFromInt(2000), "", "key-43")
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)
	})

	t.Run("transport failure is an unknown outcome", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()

		client := NewHTTPClient(srv.URL, 50*time.Millisecond)
		_, err := client.Debit(context.Background(), "ACC001", decimal.NewFromInt(500), "", "key-44")
		assert.ErrorIs(t, err, pkgerrors.ErrLedgerOutcomeUnknown)
	})
}

func TestHTTPClient_Credit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/ACC002/credit", r.URL.Path)
		json.NewEncoder(w).Encode(models.LedgerMutationResult{
			AccountNumber: "ACC002",
			NewBalance:    decimal.NewFromInt(1500),
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, time.Second)
	result, err := client.Credit(context.Background(), "ACC002", decimal.NewFromInt(500), "transfer in", "key-45")
	require.NoError(t, err)
	assert.True(t, result.NewBalance.Equal(decimal.NewFromInt(1500)))
}

func TestHTTPClient_GetPrivilege(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/ACC001/privilege", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"privilege": "SILVER"})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, time.Second)
	tier, err := client.GetPrivilege(context.Background(), "ACC001")
	require.NoError(t, err)
	assert.Equal(t, models.PrivilegeSilver, tier)
}
