package fundamental

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fairvalue-engine/internal/models"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		in        *models.FundamentalInputs
		score     float64
		kind      models.CompanyType
		improving bool
	}{
		{"no inputs", nil, 50, models.CompanyValue, false},
		{"empty inputs", &models.FundamentalInputs{}, 50, models.CompanyValue, false},
		{"excellent improving rotc", &models.FundamentalInputs{ROTC: []float64{12, 18}}, 100, models.CompanyValue, true},
		{"modest flat rotc", &models.FundamentalInputs{ROTC: []float64{9, 7.5}}, (0.5*0.7 + 0.5*0.3) * 100, models.CompanyValue, false},
		{
			"growth with cash flow",
			&models.FundamentalInputs{ROTC: []float64{-2}, RevenueGrowth: []float64{10, 20}, OperatingCashFlow: 1e6},
			(0.5*0.5 + 0.3 + 0.2) * 100,
			models.CompanyGrowth,
			true,
		},
		{
			"shrinking growth company",
			&models.FundamentalInputs{RevenueGrowth: []float64{-5, -15}, OperatingCashFlow: -1},
			0.5 * 0.2 * 100,
			models.CompanyGrowth,
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.in)
			assert.InDelta(t, tt.score, got.Score, 1e-9)
			assert.Equal(t, tt.kind, got.CompanyType)
			assert.Equal(t, tt.improving, got.Improving)
			assert.NotEmpty(t, got.Basis)
		})
	}
}
