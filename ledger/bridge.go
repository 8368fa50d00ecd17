package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowwork/agent/bus"
)

// BridgeGateway implements Gateway against a signer bridge over the bus.
// The bridge process watches the contract, republishes its events on the
// flowwork.events.* subjects, and answers reads/writes on flowwork.rpc.*.
// Wallet key handling and transaction signing live entirely in the bridge.
type BridgeGateway struct {
	bus     bus.MessageBus
	timeout time.Duration
}

// BridgeConfig holds configuration for the bridge gateway.
type BridgeConfig struct {
	// RequestTimeout bounds each RPC round trip. Default 15s.
	RequestTimeout time.Duration
}

// NewBridgeGateway creates a gateway speaking to a signer bridge over b.
func NewBridgeGateway(b bus.MessageBus, cfg BridgeConfig) *BridgeGateway {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	return &BridgeGateway{bus: b, timeout: cfg.RequestTimeout}
}

// Wire envelopes for the rpc subjects.

type bridgeRequest struct {
	TaskID        uint64 `json:"task_id,omitempty"`
	Price         Amount `json:"price,omitempty"`
	Proposal      string `json:"proposal,omitempty"`
	EstimatedTime int64  `json:"estimated_time,omitempty"` // seconds
	ContentRef    string `json:"content_ref,omitempty"`
	Tx            string `json:"tx,omitempty"`
}

type bridgeResponse struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"` // not_found | revert | no_counter | unconfirmed
	Error   string `json:"error,omitempty"`
	Task    *Task  `json:"task,omitempty"`
	Counter uint64 `json:"counter,omitempty"`
	Tx      string `json:"tx,omitempty"`
}

// Response codes.
const (
	bridgeCodeNotFound    = "not_found"
	bridgeCodeRevert      = "revert"
	bridgeCodeNoCounter   = "no_counter"
	bridgeCodeUnconfirmed = "unconfirmed"
)

func (g *BridgeGateway) call(ctx context.Context, subject string, req bridgeRequest) (*bridgeResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	timeout := g.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}

	reply, err := g.bus.Request(subject, data, timeout)
	if err != nil {
		return nil, fmt.Errorf("bridge %s: %w", subject, err)
	}

	var resp bridgeResponse
	if err := json.Unmarshal(reply.Data, &resp); err != nil {
		return nil, fmt.Errorf("bridge %s: bad response: %w", subject, err)
	}
	if !resp.OK {
		return nil, bridgeError(&resp, subject)
	}
	return &resp, nil
}

// bridgeError maps a bridge failure response onto gateway errors.
func bridgeError(resp *bridgeResponse, subject string) error {
	switch resp.Code {
	case bridgeCodeNotFound:
		return ErrTaskNotFound
	case bridgeCodeNoCounter:
		return ErrCounterUnsupported
	case bridgeCodeRevert:
		return fmt.Errorf("%w: %s", ErrRevert, resp.Error)
	case bridgeCodeUnconfirmed:
		return fmt.Errorf("%w: %s", ErrNotConfirmed, resp.Error)
	default:
		return fmt.Errorf("bridge %s: %s", subject, resp.Error)
	}
}

// GetTask fetches a task snapshot through the bridge.
func (g *BridgeGateway) GetTask(ctx context.Context, id uint64) (*Task, error) {
	resp, err := g.call(ctx, bus.SubjectGetTask, bridgeRequest{TaskID: id})
	if err != nil {
		return nil, err
	}
	if resp.Task == nil {
		return nil, ErrTaskNotFound
	}
	return resp.Task, nil
}

// GetTaskCounter returns the contract's task counter through the bridge.
func (g *BridgeGateway) GetTaskCounter(ctx context.Context) (uint64, error) {
	resp, err := g.call(ctx, bus.SubjectTaskCounter, bridgeRequest{})
	if err != nil {
		return 0, err
	}
	return resp.Counter, nil
}

// SubmitBid submits a signed bid through the bridge.
func (g *BridgeGateway) SubmitBid(ctx context.Context, id uint64, price Amount, proposal string, estimatedTime time.Duration) (TxHandle, error) {
	resp, err := g.call(ctx, bus.SubjectSubmitBid, bridgeRequest{
		TaskID:        id,
		Price:         price,
		Proposal:      proposal,
		EstimatedTime: int64(estimatedTime / time.Second),
	})
	if err != nil {
		return "", err
	}
	return TxHandle(resp.Tx), nil
}

// SubmitDelivery submits a signed delivery through the bridge.
func (g *BridgeGateway) SubmitDelivery(ctx context.Context, id uint64, contentRef string) (TxHandle, error) {
	resp, err := g.call(ctx, bus.SubjectSubmitDelivery, bridgeRequest{
		TaskID:     id,
		ContentRef: contentRef,
	})
	if err != nil {
		return "", err
	}
	return TxHandle(resp.Tx), nil
}

// AwaitConfirmation blocks until the bridge reports the write confirmed.
func (g *BridgeGateway) AwaitConfirmation(ctx context.Context, tx TxHandle) error {
	_, err := g.call(ctx, bus.SubjectConfirm, bridgeRequest{Tx: string(tx)})
	return err
}

// Events subscribes to a marketplace event topic republished by the bridge.
func (g *BridgeGateway) Events(topic string) (bus.Subscription, error) {
	return g.bus.Subscribe(topic)
}
