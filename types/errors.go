package types

// SettlementError is the classified error type shared by every component.
// Code carries the taxonomy class; Data optionally carries the underlying
// cause or a revert reason.
type SettlementError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *SettlementError) Error() string {
	return e.Message
}

// Error codes
const (
	ErrUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrUpstreamMalformed   = "UPSTREAM_MALFORMED"
	ErrOutOfRange          = "OUT_OF_RANGE"
	ErrOracleUnavailable   = "ORACLE_UNAVAILABLE"
	ErrNotOwner            = "NOT_OWNER"
	ErrUpdateNotReflected  = "UPDATE_NOT_REFLECTED"
	ErrUserRejected        = "USER_REJECTED"
	ErrInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrRateUnavailable     = "RATE_UNAVAILABLE"
	ErrContractReverted    = "CONTRACT_REVERTED"
	ErrUnknown             = "UNKNOWN"
)

// CodeOf extracts the taxonomy code from err, or ErrUnknown when err is not
// a SettlementError.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	if se, ok := err.(*SettlementError); ok {
		return se.Code
	}
	return ErrUnknown
}
