// Package lander races a prepared transaction through submission
// venues: public RPC, Jito-style bundles, and staked endpoints.
package lander

import (
	"context"

	"github.com/shai-labs/voyager/internal/engine"
)

// Lander is one submission venue.
type Lander interface {
	Name() string
	Submit(ctx context.Context, variant engine.TxVariant, deadline engine.CycleDeadline) (engine.LanderReceipt, error)
}
