package loadtest

import (
	"math/rand/v2"

	service "github.com/okian/propensity/internal/app"
	"github.com/okian/propensity/internal/domain/features"
)

// generateCustomers builds n customers spread round-robin over models.
// Every attribute stays inside the bounds the web form allows.
func generateCustomers(n int, models []service.ModelOption, seed uint64) []Customer {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]Customer, n)
	for i := range out {
		out[i] = Customer{
			Index:  i,
			Model:  models[i%len(models)].Label,
			Inputs: randomInputs(rng),
		}
	}
	return out
}

func randomInputs(rng *rand.Rand) features.Inputs {
	between := func(lo, hi int) int { return lo + rng.IntN(hi-lo+1) }
	tenth := func(hi float64) float64 { return float64(rng.IntN(int(hi*10)+1)) / 10 }

	return features.Inputs{
		Age:                  between(18, 100),
		AnnualIncome:         float64(between(0, 200) * 1000),
		NumberOfPurchases:    between(0, 100),
		TimeSpentOnWebsite:   tenth(300),
		CustomerTenureYears:  tenth(20),
		LastPurchaseDaysAgo:  between(0, 365),
		DiscountsAvailed:     between(0, 50),
		SessionCount:         between(1, 50),
		CustomerSatisfaction: between(1, 5),
		LoyaltyProgram:       between(0, 1),
		Cluster:              between(0, 3),
	}
}
