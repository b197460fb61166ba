// Package voucher redeems shareable credit codes against the ledger under
// usage and expiry constraints.
package voucher

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/SoraGate-io/soragate/internal/database"
	"github.com/SoraGate-io/soragate/internal/models"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Registry redeems and issues voucher codes.
type Registry struct {
	store *database.Store
}

func New(store *database.Store) *Registry {
	return &Registry{store: store}
}

// Result is a successful redemption.
type Result struct {
	Amount  int
	Message string
}

// ErrAccountBanned rejects redemption for banned accounts. Suspended and
// inactive accounts may still redeem.
var ErrAccountBanned = errors.New("account banned")

// Redeem applies code to username. Rejections are deterministic and carry
// the client-facing message; retrying with the same code cannot succeed.
func (r *Registry) Redeem(code, username string, now time.Time) (*Result, error) {
	acct, err := r.store.GetAccount(username)
	if err != nil {
		return nil, err
	}
	if acct.Status == models.StatusBanned {
		return nil, ErrAccountBanned
	}

	amount, err := r.store.RedeemVoucher(code, username, now)
	if err != nil {
		return nil, err
	}

	if logErr := r.store.AppendLog(username, "redeem "+code, amount, "Redeemed", "", now); logErr != nil {
		// Credits are already applied; the missing audit row is the
		// lesser failure.
		fmt.Println("warning: could not log redemption:", logErr)
	}

	return &Result{
		Amount:  amount,
		Message: fmt.Sprintf("Added %d Credits", amount),
	}, nil
}

// RejectionMessage maps a redemption error to the client-facing message.
// Unknown errors report as a generic failure.
func RejectionMessage(err error) string {
	switch {
	case errors.Is(err, database.ErrVoucherNotFound):
		return "Invalid Code"
	case errors.Is(err, database.ErrVoucherExpired):
		return "Expired"
	case errors.Is(err, database.ErrVoucherExhausted):
		return "Fully Used"
	case errors.Is(err, database.ErrVoucherAlreadyUsed):
		return "Already Redeemed"
	case errors.Is(err, ErrAccountBanned):
		return "Account Banned"
	case errors.Is(err, database.ErrNotFound):
		return "Unknown User"
	}
	return "Redemption Failed"
}

// GenerateBatch creates count vouchers of the given amount and returns
// them. Codes look like SORA-100-AB12CD34.
func (r *Registry) GenerateBatch(amount, count, maxUses int, expiry *time.Time, now time.Time) ([]*models.Voucher, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("voucher amount must be positive")
	}
	if count <= 0 {
		return nil, fmt.Errorf("voucher count must be positive")
	}
	if maxUses <= 0 {
		maxUses = 1
	}

	vouchers := make([]*models.Voucher, 0, count)
	for i := 0; i < count; i++ {
		v := &models.Voucher{
			Code:       generateCode(amount),
			Amount:     amount,
			MaxUses:    maxUses,
			ExpiryDate: expiry,
			CreatedAt:  now,
		}
		if err := r.store.CreateVoucher(v); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				// Code collision; draw again.
				i--
				continue
			}
			return nil, err
		}
		vouchers = append(vouchers, v)
	}
	return vouchers, nil
}

func (r *Registry) List() ([]*models.Voucher, error) {
	return r.store.ListVouchers()
}

func (r *Registry) Delete(code string) error {
	return r.store.DeleteVoucher(code)
}

func generateCode(amount int) string {
	suffix := make([]byte, 8)
	for i := range suffix {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		suffix[i] = codeAlphabet[n.Int64()]
	}
	return fmt.Sprintf("SORA-%d-%s", amount, suffix)
}
