package bitcoin

import "fmt"

// Operation names, also used as metric labels.
const (
	OpChainState  = "chain_state"
	OpBlockStats  = "block_stats"
	OpFeeEstimate = "fee_estimate"
)

// FetchError is the single failure category of a data source operation.
// Transport failures, malformed responses and remote errors all surface
// as a FetchError wrapping the cause.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

func fetchErr(op string, err error) error {
	return &FetchError{Op: op, Err: err}
}
