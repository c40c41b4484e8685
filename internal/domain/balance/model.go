package balance

// AgingBuckets groups outstanding receivables by how far past due they are
// as of the requested date
type AgingBuckets struct {
	Current int64 `json:"current"`
	D30     int64 `json:"d30"`
	D60     int64 `json:"d60"`
	D90     int64 `json:"d90"`
	D90Plus int64 `json:"d90plus"`
}

// FundSnapshot is the materialized balance view for one fund. It is derived
// state: everything in it can be rebuilt by replaying the journal log, and it
// is never the source of truth.
type FundSnapshot struct {
	FundID string `json:"fundId"`
	// LastSeq is the highest journal sequence folded into the snapshot
	LastSeq uint64 `json:"lastSeq"`
	// Nets maps accountID to net debit-minus-credit in minor units
	Nets map[string]int64 `json:"nets"`

	// DynamoDB specific attributes
	PK string `json:"-"`
	SK string `json:"-"`
}

// GetBalanceRequest represents a point-in-time balance query
type GetBalanceRequest struct {
	AccountID string `json:"accountId" validate:"required"`
	AsOf      string `json:"asOf,omitempty"` // YYYY-MM-DD, empty means latest
}

// GetAgingBucketsRequest represents an AR-aging query for a fund
type GetAgingBucketsRequest struct {
	FundID string `json:"fundId" validate:"required"`
	AsOf   string `json:"asOf" validate:"required"` // YYYY-MM-DD
}
