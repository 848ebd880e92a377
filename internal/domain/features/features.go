// Package features builds the named, single-row input records passed to
// purchase propensity models.
package features

import (
	"sort"
	"strings"
)

// Feature keys, named exactly as the models were trained.
const (
	Age                  = "Age"
	AnnualIncome         = "AnnualIncome"
	NumberOfPurchases    = "NumberOfPurchases"
	TimeSpentOnWebsite   = "TimeSpentOnWebsite"
	CustomerTenureYears  = "CustomerTenureYears"
	LastPurchaseDaysAgo  = "LastPurchaseDaysAgo"
	DiscountsAvailed     = "DiscountsAvailed"
	SessionCount         = "SessionCount"
	CustomerSatisfaction = "CustomerSatisfaction"
	LoyaltyProgram       = "LoyaltyProgram"
	Cluster              = "Cluster"
)

// DefaultNoClusterMarker marks identifiers of models trained without Cluster.
const DefaultNoClusterMarker = "no_cluster"

// BaseKeys lists the ten attributes every model consumes, in column order.
var BaseKeys = []string{
	Age,
	AnnualIncome,
	NumberOfPurchases,
	TimeSpentOnWebsite,
	CustomerTenureYears,
	LastPurchaseDaysAgo,
	DiscountsAvailed,
	SessionCount,
	CustomerSatisfaction,
	LoyaltyProgram,
}

// Inputs carries the raw form values for one customer.
type Inputs struct {
	Age                  int     `json:"age"`
	AnnualIncome         float64 `json:"annual_income"`
	NumberOfPurchases    int     `json:"number_of_purchases"`
	TimeSpentOnWebsite   float64 `json:"time_spent_on_website"`
	CustomerTenureYears  float64 `json:"customer_tenure_years"`
	LastPurchaseDaysAgo  int     `json:"last_purchase_days_ago"`
	DiscountsAvailed     int     `json:"discounts_availed"`
	SessionCount         int     `json:"session_count"`
	CustomerSatisfaction int     `json:"customer_satisfaction"`
	LoyaltyProgram       int     `json:"loyalty_program"`
	Cluster              int     `json:"cluster"`
}

// DefaultInputs returns the values a fresh form starts with.
func DefaultInputs() Inputs {
	return Inputs{
		Age:                  30,
		AnnualIncome:         50000,
		NumberOfPurchases:    5,
		TimeSpentOnWebsite:   30,
		CustomerTenureYears:  2,
		LastPurchaseDaysAgo:  30,
		DiscountsAvailed:     2,
		SessionCount:         5,
		CustomerSatisfaction: 3,
		LoyaltyProgram:       0,
		Cluster:              0,
	}
}

// Record is one named row of model input. Keys keeps column order.
type Record struct {
	keys   []string
	values map[string]float64
}

// NewRecord builds a Record from explicit key/value pairs, keeping the order of keys.
// Keys absent from values are skipped.
func NewRecord(keys []string, values map[string]float64) Record {
	r := Record{values: make(map[string]float64, len(keys))}
	for _, k := range keys {
		v, ok := values[k]
		if !ok {
			continue
		}
		if _, dup := r.values[k]; dup {
			continue
		}
		r.keys = append(r.keys, k)
		r.values[k] = v
	}
	return r
}

// Build maps the raw inputs onto the fixed key set. Cluster is included only
// when includeCluster is true.
func Build(in Inputs, includeCluster bool) Record {
	values := map[string]float64{
		Age:                  float64(in.Age),
		AnnualIncome:         in.AnnualIncome,
		NumberOfPurchases:    float64(in.NumberOfPurchases),
		TimeSpentOnWebsite:   in.TimeSpentOnWebsite,
		CustomerTenureYears:  in.CustomerTenureYears,
		LastPurchaseDaysAgo:  float64(in.LastPurchaseDaysAgo),
		DiscountsAvailed:     float64(in.DiscountsAvailed),
		SessionCount:         float64(in.SessionCount),
		CustomerSatisfaction: float64(in.CustomerSatisfaction),
		LoyaltyProgram:       float64(in.LoyaltyProgram),
	}
	keys := BaseKeys
	if includeCluster {
		values[Cluster] = float64(in.Cluster)
		keys = append(append(make([]string, 0, len(BaseKeys)+1), BaseKeys...), Cluster)
	}
	return NewRecord(keys, values)
}

// UsesCluster reports whether the model identified by identifier expects the
// Cluster feature. An empty marker falls back to DefaultNoClusterMarker.
func UsesCluster(identifier, noClusterMarker string) bool {
	if noClusterMarker == "" {
		noClusterMarker = DefaultNoClusterMarker
	}
	return !strings.Contains(identifier, noClusterMarker)
}

// Keys returns the column names in order.
func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Get returns the value stored under key.
func (r Record) Get(key string) (float64, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Has reports whether key is present.
func (r Record) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Len returns the number of columns.
func (r Record) Len() int { return len(r.keys) }

// Values returns a copy of the column map.
func (r Record) Values() map[string]float64 {
	out := make(map[string]float64, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Diff compares the record's key set against want and returns the keys
// missing from the record and the keys it carries that want does not list.
// Both results are sorted.
func (r Record) Diff(want []string) (missing, extra []string) {
	wanted := make(map[string]struct{}, len(want))
	for _, k := range want {
		wanted[k] = struct{}{}
		if !r.Has(k) {
			missing = append(missing, k)
		}
	}
	for _, k := range r.keys {
		if _, ok := wanted[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return missing, extra
}
