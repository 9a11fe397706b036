package ledger

import (
	"context"
	"fmt"

	"github.com/beneflow/ledger/types"
)

// ChargeRequest describes a card charge to create on the external
// payment gateway. Metadata is attached verbatim for traceability.
type ChargeRequest struct {
	Amount         types.Money
	IdempotencyKey string
	Metadata       map[string]string
}

// Charge is the gateway's handle for a created card charge. The
// client secret is handed to the front end so the gateway can confirm
// the charge asynchronously.
type Charge struct {
	ChargeID     string
	ClientSecret string
}

// Gateway is the external payment provider client. Implementations
// wrap a concrete provider SDK; the settlement orchestrator treats
// them as a black box that either returns a charge or an error.
type Gateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	CancelCharge(ctx context.Context, chargeID string) error
}

// GatewayError wraps a provider-specific failure with the provider's
// error code when one is available.
type GatewayError struct {
	Code    string
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("ledger: gateway error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("ledger: gateway error: %s", e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }
