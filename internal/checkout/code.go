package checkout

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/becoinapp/becoin-backend/internal/orders"
	pkgerrors "github.com/becoinapp/becoin-backend/pkg/errors"
)

const (
	codeMin      = 1000
	codeSpan     = 9000
	maxCodeDraws = 25
)

// drawCode picks a 4-digit delivery code no currently-open order carries.
// Two open orders sharing a code would let one buyer's code confirm the
// other's delivery.
func drawCode(ctx context.Context, repo orders.Repository) (int, error) {
	for attempt := 0; attempt < maxCodeDraws; attempt++ {
		n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "draw delivery code")
		}
		code := codeMin + int(n.Int64())

		inUse, err := repo.CodeInUse(ctx, code)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check delivery code")
		}
		if !inUse {
			return code, nil
		}
	}
	return 0, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("no free delivery code after %d draws", maxCodeDraws))
}
