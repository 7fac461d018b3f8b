package models

import "time"

// ResultKind is the coarse taxonomy for the outcome of one attempt.
type ResultKind string

const (
	ResultDelivered        ResultKind = "delivered"
	ResultGenericFailure   ResultKind = "generic_failure"
	ResultNoService        ResultKind = "no_service"
	ResultMalformedPayload ResultKind = "malformed_payload"
	ResultRadioOff         ResultKind = "radio_off"
	ResultUnknown          ResultKind = "unknown"
	ResultTimeout          ResultKind = "timeout"
)

// Platform result codes reported by the radio for a transmission.
const (
	CodeOK             = -1
	CodeGenericFailure = 1
	CodeRadioOff       = 2
	CodeNullPDU        = 3
	CodeNoService      = 4
)

// OutcomeEvent is the result of one transmission attempt. It is consumed
// once by the coordinator and then discarded.
type OutcomeEvent struct {
	Context AttemptContext
	Kind    ResultKind
	Success bool
	Reason  string
}

// StatusEvent is delivered to the initiating layer once per observed
// attempt outcome.
type StatusEvent struct {
	SendID      string     `json:"send_id"`
	Success     bool       `json:"success"`
	Destination string     `json:"destination"`
	ChannelID   *int       `json:"channel_id,omitempty"`
	IsRetry     bool       `json:"is_retry"`
	ErrorReason string     `json:"error_reason,omitempty"`
	Kind        ResultKind `json:"result_kind"`
	Timestamp   time.Time  `json:"timestamp"`
}

// RawResult is a delivery report as received from an external gateway.
type RawResult struct {
	Token string `json:"token"`
	Code  int    `json:"code"`
}
