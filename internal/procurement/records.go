// Package procurement defines the raw record model shared by data sources,
// detectors, and agents: contracts, payments, and bids as published by the
// Brazilian transparency portals, normalized to a source-agnostic shape.
package procurement

import (
	"fmt"
	"strings"
	"time"
)

// Contract is a single procurement contract record.
type Contract struct {
	// Key is the source-agnostic natural key (e.g. "26000:2024:001234" for
	// organ code, year, and sequential number). Used for cross-source
	// de-duplication.
	Key string `json:"key"`

	// Supplier identification (CNPJ) and name.
	SupplierID   string `json:"supplier_id"`
	SupplierName string `json:"supplier_name,omitempty"`

	// Contracting government body.
	OrganCode string `json:"organ_code"`
	OrganName string `json:"organ_name,omitempty"`

	// Value in BRL.
	Value float64 `json:"value"`

	// Modality is the procurement modality (pregao, concorrencia, dispensa,
	// inexigibilidade, ...).
	Modality string `json:"modality,omitempty"`

	// Object is the free-text description of what was contracted.
	Object string `json:"object,omitempty"`

	SignedAt time.Time `json:"signed_at"`

	// AmendmentValue is the accumulated value added by amendments (termos
	// aditivos), zero when none.
	AmendmentValue float64 `json:"amendment_value,omitempty"`

	Source string `json:"source,omitempty"`
}

// Validate reports whether the contract carries the minimum fields detectors
// rely on. Detectors skip (and count) records failing validation.
func (c Contract) Validate() error {
	if c.Key == "" {
		return fmt.Errorf("contract missing natural key")
	}
	if c.Value <= 0 {
		return fmt.Errorf("contract %s has non-positive value %f", c.Key, c.Value)
	}
	if c.SignedAt.IsZero() {
		return fmt.Errorf("contract %s missing signature date", c.Key)
	}
	return nil
}

// Payment is a single disbursement record.
type Payment struct {
	Key         string    `json:"key"`
	PayerID     string    `json:"payer_id"`
	PayeeID     string    `json:"payee_id"`
	Value       float64   `json:"value"`
	PaidAt      time.Time `json:"paid_at"`
	ContractKey string    `json:"contract_key,omitempty"`
	Source      string    `json:"source,omitempty"`
}

// Validate reports whether the payment is usable by detectors.
func (p Payment) Validate() error {
	if p.Key == "" {
		return fmt.Errorf("payment missing natural key")
	}
	if p.Value <= 0 {
		return fmt.Errorf("payment %s has non-positive value %f", p.Key, p.Value)
	}
	if p.PaidAt.IsZero() {
		return fmt.Errorf("payment %s missing timestamp", p.Key)
	}
	return nil
}

// Bid is a single vendor bid on a tender.
type Bid struct {
	Key       string    `json:"key"`
	TenderKey string    `json:"tender_key"`
	VendorID  string    `json:"vendor_id"`
	Value     float64   `json:"value"`
	Won       bool      `json:"won"`
	PlacedAt  time.Time `json:"placed_at"`
	Source    string    `json:"source,omitempty"`
}

// Validate reports whether the bid is usable by detectors.
func (b Bid) Validate() error {
	if b.TenderKey == "" {
		return fmt.Errorf("bid missing tender key")
	}
	if b.VendorID == "" {
		return fmt.Errorf("bid missing vendor id")
	}
	if b.Value <= 0 {
		return fmt.Errorf("bid on %s has non-positive value %f", b.TenderKey, b.Value)
	}
	return nil
}

// RecordSet bundles the record kinds a data source can return for a query.
// Fields are independent; a source may fill only some of them.
type RecordSet struct {
	Contracts []Contract `json:"contracts,omitempty"`
	Payments  []Payment  `json:"payments,omitempty"`
	Bids      []Bid      `json:"bids,omitempty"`
}

// Len returns the total record count across all kinds.
func (rs *RecordSet) Len() int {
	return len(rs.Contracts) + len(rs.Payments) + len(rs.Bids)
}

// Merge appends another record set into this one without de-duplication.
// Use Dedupe afterwards when records may overlap across sources.
func (rs *RecordSet) Merge(other *RecordSet) {
	if other == nil {
		return
	}
	rs.Contracts = append(rs.Contracts, other.Contracts...)
	rs.Payments = append(rs.Payments, other.Payments...)
	rs.Bids = append(rs.Bids, other.Bids...)
}

// Dedupe removes duplicate records by natural key, keeping the first
// occurrence. Records with empty keys are kept as-is; validation is the
// detectors' concern.
func (rs *RecordSet) Dedupe() {
	seenC := make(map[string]bool, len(rs.Contracts))
	contracts := rs.Contracts[:0]
	for _, c := range rs.Contracts {
		if c.Key != "" && seenC[c.Key] {
			continue
		}
		seenC[c.Key] = true
		contracts = append(contracts, c)
	}
	rs.Contracts = contracts

	seenP := make(map[string]bool, len(rs.Payments))
	payments := rs.Payments[:0]
	for _, p := range rs.Payments {
		if p.Key != "" && seenP[p.Key] {
			continue
		}
		seenP[p.Key] = true
		payments = append(payments, p)
	}
	rs.Payments = payments

	seenB := make(map[string]bool, len(rs.Bids))
	bids := rs.Bids[:0]
	for _, b := range rs.Bids {
		if b.Key != "" && seenB[b.Key] {
			continue
		}
		seenB[b.Key] = true
		bids = append(bids, b)
	}
	rs.Bids = bids
}

// Query describes a logical data request against the fan-out layer.
type Query struct {
	// Entities restricts results to the given CNPJs or organ codes.
	// Empty means no entity filter.
	Entities []string `json:"entities,omitempty"`

	From time.Time `json:"from,omitzero"`
	To   time.Time `json:"to,omitzero"`

	// Kinds restricts which record kinds to fetch ("contracts", "payments",
	// "bids"). Empty means all.
	Kinds []string `json:"kinds,omitempty"`
}

// MatchesEntity reports whether the given entity identifier passes the
// query's entity filter.
func (q Query) MatchesEntity(entity string) bool {
	if len(q.Entities) == 0 {
		return true
	}
	for _, e := range q.Entities {
		if strings.EqualFold(e, entity) {
			return true
		}
	}
	return false
}

// WantsKind reports whether the query requests the given record kind.
func (q Query) WantsKind(kind string) bool {
	if len(q.Kinds) == 0 {
		return true
	}
	for _, k := range q.Kinds {
		if strings.EqualFold(k, kind) {
			return true
		}
	}
	return false
}
