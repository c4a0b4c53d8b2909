package training

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
)

var errNonFinite = errors.New("non-finite prediction")

// Evaluate computes MAE and RMSE for the 24h, 48h and 72h columns of truth and
// pred, and the mean of the three RMSEs.
func Evaluate(truth, pred [][]float64) (airquality.HorizonMetrics, error) {
	var m airquality.HorizonMetrics
	if len(truth) == 0 || len(truth) != len(pred) {
		return m, errors.New("prediction and truth lengths differ")
	}

	mae := make([]float64, 3)
	rmse := make([]float64, 3)
	absErr := make([]float64, len(truth))
	sqErr := make([]float64, len(truth))
	for h := 0; h < 3; h++ {
		for i := range truth {
			d := pred[i][h] - truth[i][h]
			if math.IsNaN(d) || math.IsInf(d, 0) {
				return m, errNonFinite
			}
			absErr[i] = math.Abs(d)
			sqErr[i] = d * d
		}
		mae[h] = stat.Mean(absErr, nil)
		rmse[h] = math.Sqrt(stat.Mean(sqErr, nil))
	}

	m.MAE24, m.MAE48, m.MAE72 = mae[0], mae[1], mae[2]
	m.RMSE24, m.RMSE48, m.RMSE72 = rmse[0], rmse[1], rmse[2]
	m.RMSEAvg = stat.Mean(rmse, nil)
	return m, nil
}
