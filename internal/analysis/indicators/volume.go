package indicators

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"fairvalue-engine/internal/models"
)

// VolumeRatio is the volume moving average relative to the day's volume, minus one.
type VolumeRatio struct {
	period int
}

// NewVolumeRatio creates a new volume ratio indicator.
func NewVolumeRatio(period int) *VolumeRatio {
	return &VolumeRatio{period: period}
}

func (v *VolumeRatio) Name() string {
	return fmt.Sprintf("volume_ma_%d", v.period)
}

func (v *VolumeRatio) Period() int {
	return v.period
}

func (v *VolumeRatio) Calculate(candles []models.Candle) ([]float64, error) {
	if err := checkWindow(v.period, len(candles), 0); err != nil {
		return nil, err
	}

	vols := volumes(candles)
	sma := talib.Sma(vols, v.period)
	result := make([]float64, len(vols))
	for i := range vols {
		result[i] = ratioMinusOne(sma[i], vols[i])
	}
	return nanPrefix(result, v.period-1), nil
}
