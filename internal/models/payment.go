package models

import "time"

// PaymentStatus is the lifecycle status of a push payment.
type PaymentStatus string

const (
	PaymentStatusInitiated  PaymentStatus = "initiated"
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	PaymentStatusExpired    PaymentStatus = "expired"
)

// IsTerminal reports whether no further transition can leave s.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired:
		return true
	}
	return false
}

// PaymentSession is one push-payment attempt.
type PaymentSession struct {
	PaymentID        string        `json:"paymentId"`
	PaymentReference string        `json:"paymentReference"`
	ApplicationID    string        `json:"applicationId"`
	PhoneNumber      string        `json:"phoneNumber"`
	Amount           int64         `json:"amount"`
	Status           PaymentStatus `json:"status"`
	ReceiptNumber    string        `json:"receiptNumber,omitempty"`
	TransactionDate  string        `json:"transactionDate,omitempty"`
	FailureReason    string        `json:"failureReason,omitempty"`
	StartedAt        time.Time     `json:"startedAt"`
}

// PaymentResult is the completion signal handed to finalization.
type PaymentResult struct {
	PaymentID        string `json:"paymentId,omitempty"`
	PaymentReference string `json:"paymentReference"`
	ReceiptNumber    string `json:"receiptNumber"`
	TransactionDate  string `json:"transactionDate,omitempty"`
	Amount           int64  `json:"amount,omitempty"`
	PhoneNumber      string `json:"phoneNumber,omitempty"`
}

// PaymentInitiationRequest is the body of POST /payments/mobilemoney/initiate.
type PaymentInitiationRequest struct {
	ApplicationID    string `json:"applicationId"`
	Amount           int64  `json:"amount"`
	PhoneNumber      string `json:"phoneNumber"`
	AccountReference string `json:"accountReference"`
	Description      string `json:"description"`
}

type PaymentInitiation struct {
	PaymentID        string `json:"paymentId"`
	PaymentReference string `json:"paymentReference"`
	PhoneNumber      string `json:"phoneNumber"`
	Amount           int64  `json:"amount"`
}

// PaymentStatusResponse is returned by GET /payments/{id}/status.
type PaymentStatusResponse struct {
	Status               PaymentStatus `json:"status"`
	MpesaReceiptNumber   string        `json:"mpesaReceiptNumber,omitempty"`
	MpesaTransactionDate string        `json:"mpesaTransactionDate,omitempty"`
	Amount               int64         `json:"amount"`
	PhoneNumber          string        `json:"phoneNumber"`
	PaymentReference     string        `json:"paymentReference"`
	ResultDesc           string        `json:"resultDesc,omitempty"`
	FailureReason        string        `json:"failureReason,omitempty"`
}

// Reason returns the most specific failure text the backend supplied.
func (r PaymentStatusResponse) Reason() string {
	if r.FailureReason != "" {
		return r.FailureReason
	}
	if r.ResultDesc != "" {
		return r.ResultDesc
	}
	return "payment " + string(r.Status)
}
