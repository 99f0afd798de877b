package ledger

import "time"

const (
	StatusYes = "Y"
	StatusNo  = "N"
)

// StatusRecord is one per-event delivery row. A row whose ArtifactStatus is
// "Y" marks its (employee, event, file, artifact) tuple as delivered; the
// unique delivery index allows at most one such row per tuple.
type StatusRecord struct {
	ID                  uint       `json:"id" gorm:"primaryKey;column:id"`
	TransactionID       string     `json:"transactionId" gorm:"column:transaction_id;size:64;index"`
	EmployeeID          string     `json:"geNumber" gorm:"column:ge_number;size:64;uniqueIndex:idx_status_delivery,priority:1"`
	SecondaryID         string     `json:"kgidNo,omitempty" gorm:"column:kgid_no;size:64"`
	EventID             string     `json:"eventId" gorm:"column:event_id;size:64;uniqueIndex:idx_status_delivery,priority:2"`
	EventName           string     `json:"eventName" gorm:"column:event_name;size:255"`
	FileID              string     `json:"fileId" gorm:"column:file_id;size:64;uniqueIndex:idx_status_delivery,priority:3"`
	ArtifactName        string     `json:"pdfFileName" gorm:"column:pdf_file_name;size:255;uniqueIndex:idx_status_delivery,priority:4"`
	ArtifactStatus      string     `json:"pdfFileNameStatus" gorm:"column:pdf_file_name_status;size:1;uniqueIndex:idx_status_delivery,priority:5"`
	JSONGenerationState string     `json:"jsonGenerationStatus" gorm:"column:json_generation_status;size:1"`
	SentAt              *time.Time `json:"jsonSentDate,omitempty" gorm:"column:json_sent_date"`

	DownstreamReceivedStatus string     `json:"hrmsReceivedStatus" gorm:"column:hrms_received_status;size:1"`
	DownstreamReceivedAt     *time.Time `json:"hrmsReceivedDate,omitempty" gorm:"column:hrms_received_date"`
	DownstreamRejectedStatus string     `json:"hrmsRejectedStatus" gorm:"column:hrms_rejected_status;size:1"`
	DownstreamRejectedAt     *time.Time `json:"hrmsRejectedDate,omitempty" gorm:"column:hrms_rejected_date"`

	OfficeReceivedStatus string     `json:"ddoReceivedStatus" gorm:"column:ddo_received_status;size:1"`
	OfficeReceivedAt     *time.Time `json:"ddoReceivedDate,omitempty" gorm:"column:ddo_received_date"`
	OfficeRejectedStatus string     `json:"ddoRejectedStatus" gorm:"column:ddo_rejected_status;size:1"`
	OfficeRejectedAt     *time.Time `json:"ddoRejectedDate,omitempty" gorm:"column:ddo_rejected_date"`
	RejectedComments     string     `json:"rejectedComments,omitempty" gorm:"column:rejected_comments;type:text"`

	CreatedAt time.Time `json:"createdAt" gorm:"column:created_at;<-:create"`
}

func (StatusRecord) TableName() string {
	return "hrms_status_update"
}

// Key identifies a delivery tuple for the idempotency check.
type Key struct {
	EmployeeID   string
	EventID      string
	FileID       string
	ArtifactName string
}

// Party names the organisation reporting back on a delivered transaction.
type Party string

const (
	PartyDownstream Party = "downstream"
	PartyOffice     Party = "office"
)

// Decision is the outcome a party reports.
type Decision string

const (
	DecisionReceived Decision = "received"
	DecisionRejected Decision = "rejected"
)

// Callback is an out-of-band status report for one transaction.
type Callback struct {
	TransactionID string
	Party         Party
	Decision      Decision
	Comments      string
	At            time.Time
}
