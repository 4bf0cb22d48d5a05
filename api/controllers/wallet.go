package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/becoinapp/becoin-backend/api/responses"
	"github.com/becoinapp/becoin-backend/api/validators"
	ledgersvc "github.com/becoinapp/becoin-backend/internal/ledger"
	walletsvc "github.com/becoinapp/becoin-backend/internal/wallets"
	"github.com/becoinapp/becoin-backend/pkg/db/models"
	pkgerrors "github.com/becoinapp/becoin-backend/pkg/errors"
	"github.com/becoinapp/becoin-backend/pkg/logger"
	"github.com/becoinapp/becoin-backend/pkg/pagination"
)

// GetWallet returns the caller's wallet balances, provisioning the wallet
// on first use.
func GetWallet(svc walletsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		wallet, err := svc.EnsureWallet(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newWalletResponse(wallet))
	}
}

// ListWalletTransactions pages through the caller's ledger, newest first.
func ListWalletTransactions(walletSvc walletsvc.Service, ledgerSvc ledgersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if walletSvc == nil || ledgerSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		wallet, err := walletSvc.GetBalance(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		txns, next, err := ledgerSvc.ListByWallet(r.Context(), wallet.ID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := transactionListResponse{Transactions: make([]transactionResponse, 0, len(txns))}
		for i := range txns {
			resp.Transactions = append(resp.Transactions, newTransactionResponse(&txns[i]))
		}
		if next != nil {
			cursor := next.Encode()
			resp.NextCursor = &cursor
		}
		responses.WriteSuccess(w, resp)
	}
}

// RechargeWallet tops up the caller's wallet against a gateway charge.
func RechargeWallet(svc walletsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload rechargeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		wallet, err := svc.Recharge(r.Context(), walletsvc.RechargeInput{
			UserID:    userID,
			Amount:    payload.Amount,
			Reference: payload.Reference,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newWalletResponse(wallet))
	}
}

// WithdrawWallet opens a payout of becoin from the caller's wallet.
func WithdrawWallet(svc walletsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload withdrawRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		wallet, err := svc.RequestWithdraw(r.Context(), walletsvc.WithdrawInput{
			UserID:    userID,
			Amount:    payload.Amount,
			Reference: payload.Reference,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newWalletResponse(wallet))
	}
}

// TransferWallet moves becoin from the caller's wallet to another wallet.
func TransferWallet(svc walletsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload transferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		wallet, err := svc.Transfer(r.Context(), walletsvc.TransferInput{
			FromUserID: userID,
			ToWalletID: payload.ToWalletID,
			Amount:     payload.Amount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newWalletResponse(wallet))
	}
}

type rechargeRequest struct {
	Amount    decimal.Decimal `json:"amount" validate:"required"`
	Reference string          `json:"reference" validate:"required"`
}

type withdrawRequest struct {
	Amount    decimal.Decimal `json:"amount" validate:"required"`
	Reference string          `json:"reference" validate:"required"`
}

type transferRequest struct {
	ToWalletID uuid.UUID       `json:"to_wallet_id" validate:"required"`
	Amount     decimal.Decimal `json:"amount" validate:"required"`
}

type walletResponse struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	AvailableBalance string    `json:"available_balance"`
	LockedBalance    string    `json:"locked_balance"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func newWalletResponse(wallet *models.Wallet) walletResponse {
	return walletResponse{
		ID:               wallet.ID,
		UserID:           wallet.UserID,
		AvailableBalance: wallet.AvailableBalance.StringFixed(2),
		LockedBalance:    wallet.LockedBalance.StringFixed(2),
		UpdatedAt:        wallet.UpdatedAt,
	}
}

type transactionListResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	NextCursor   *string               `json:"next_cursor,omitempty"`
}

type transactionResponse struct {
	ID              uuid.UUID  `json:"id"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	Amount          string     `json:"amount"`
	PostBalance     string     `json:"post_balance"`
	Reference       string     `json:"reference"`
	RelatedWalletID *uuid.UUID `json:"related_wallet_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func newTransactionResponse(txn *models.Transaction) transactionResponse {
	return transactionResponse{
		ID:              txn.ID,
		Type:            txn.Type.String(),
		Status:          txn.Status.String(),
		Amount:          txn.Amount.StringFixed(2),
		PostBalance:     txn.PostBalance.StringFixed(2),
		Reference:       txn.Reference,
		RelatedWalletID: txn.RelatedWalletID,
		CreatedAt:       txn.CreatedAt,
	}
}
