package models

import "time"

type ApplicationStatus string

const (
	ApplicationStatusDraft                ApplicationStatus = "draft"
	ApplicationStatusPendingPayment       ApplicationStatus = "pending_payment"
	ApplicationStatusSubmitted            ApplicationStatus = "submitted"
	ApplicationStatusRequiresVerification ApplicationStatus = "requires_verification"
)

// Application is the backend record of an insurance application. The backend
// assigns ID and Number when the draft is created.
type Application struct {
	ID               string            `json:"applicationId"`
	Number           string            `json:"applicationNumber"`
	Status           ApplicationStatus `json:"status"`
	ProductType      string            `json:"productType,omitempty"`
	PremiumAmount    int64             `json:"premiumAmount"`
	PaymentReference string            `json:"paymentReference,omitempty"`
	ReceiptNumber    string            `json:"receiptNumber,omitempty"`
	SubmittedAt      *time.Time        `json:"submittedAt,omitempty"`
}

// FormSnapshot is the collected wizard data for one submission attempt.
type FormSnapshot struct {
	SubmissionID  string                 `json:"submissionId"`
	ProductType   string                 `json:"productType"`
	PremiumAmount int64                  `json:"premiumAmount"`
	Personal      PersonalInfo           `json:"personal"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
}

type PersonalInfo struct {
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	NationalID  string `json:"nationalId,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
}

// ApplicationUpdate is the PATCH body sent on finalization.
type ApplicationUpdate struct {
	Status           ApplicationStatus `json:"status"`
	PaymentReference string            `json:"paymentReference,omitempty"`
	ReceiptNumber    string            `json:"receiptNumber,omitempty"`
	TransactionDate  string            `json:"transactionDate,omitempty"`
	SubmittedAt      *time.Time        `json:"submittedAt,omitempty"`
}
