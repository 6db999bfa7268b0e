package stationarity

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"cryptoSniper/internal/ports"
)

// LagSelection chooses how many lagged differences enter the ADF regression.
type LagSelection string

const (
	// LagFixed uses the maximum lag count directly.
	LagFixed LagSelection = "fixed"
	// LagAIC picks the lag count minimising the Akaike information criterion.
	LagAIC LagSelection = "aic"
)

// MacKinnon response surface for the constant-only regression with one variable.
const (
	tauMax  = 2.74
	tauMin  = -18.83
	tauStar = -1.61
)

var (
	tauSmallP = [3]float64{2.1659, 1.4412, 0.038269}
	tauLargeP = [4]float64{1.7339, 0.93202, -0.12745, -0.010368}
)

// Critical value surfaces (MacKinnon 2010), constant-only regression: b0 + b1/T + b2/T^2 + b3/T^3.
var criticalSurfaces = map[string][4]float64{
	"1%":  {-3.43035, -6.5393, -16.786, -79.433},
	"5%":  {-2.86154, -2.8903, -4.234, -40.040},
	"10%": {-2.56677, -1.5384, -2.809, 0},
}

var errSingular = errors.New("singular regression matrix")

// adfFit is one ADF regression.
type adfFit struct {
	stat float64
	ssr  float64
	nobs int
	k    int
}

// schwertLags is the rule-of-thumb maximum lag: floor(12 * (n/100)^(1/4)).
func schwertLags(n int) int {
	return int(math.Floor(12 * math.Pow(float64(n)/100, 0.25)))
}

// MacKinnonPValue approximates the asymptotic p-value of an ADF statistic with a constant.
func MacKinnonPValue(statistic float64) float64 {
	switch {
	case statistic > tauMax:
		return 1
	case statistic < tauMin:
		return 0
	case statistic <= tauStar:
		c := tauSmallP
		return distuv.UnitNormal.CDF(c[0] + c[1]*statistic + c[2]*statistic*statistic)
	default:
		c := tauLargeP
		x := statistic
		return distuv.UnitNormal.CDF(c[0] + c[1]*x + c[2]*x*x + c[3]*x*x*x)
	}
}

// CriticalValues returns the 1%, 5% and 10% critical values for nobs observations.
func CriticalValues(nobs int) map[string]float64 {
	out := make(map[string]float64, len(criticalSurfaces))
	t := float64(nobs)
	for level, b := range criticalSurfaces {
		out[level] = b[0] + b[1]/t + b[2]/(t*t) + b[3]/(t*t*t)
	}
	return out
}

// adfRegress fits dy_t = a + b*y_{t-1} + sum_j c_j*dy_{t-j} over t >= start+1 and returns the
// t-statistic of b. start must be >= lags.
func adfRegress(y []float64, lags, start int) (adfFit, error) {
	n := len(y)
	rows := n - 1 - start
	k := 2 + lags
	if rows <= k {
		return adfFit{}, fmt.Errorf("%w: %d usable observations for %d regressors", ports.ErrInsufficientData, rows, k)
	}

	dy := make([]float64, n)
	for t := 1; t < n; t++ {
		dy[t] = y[t] - y[t-1]
	}

	x := mat.NewDense(rows, k, nil)
	target := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := start + 1 + r
		row := x.RawRowView(r)
		row[0] = 1
		row[1] = y[t-1]
		for j := 1; j <= lags; j++ {
			row[1+j] = dy[t-j]
		}
		target.SetVec(r, dy[t])
	}

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		return adfFit{}, fmt.Errorf("%w: %v", errSingular, err)
	}
	var xty mat.VecDense
	xty.MulVec(x.T(), target)
	var beta mat.VecDense
	beta.MulVec(&inv, &xty)

	var fitted mat.VecDense
	fitted.MulVec(x, &beta)
	ssr := 0.0
	for r := 0; r < rows; r++ {
		e := target.AtVec(r) - fitted.AtVec(r)
		ssr += e * e
	}

	sigma2 := ssr / float64(rows-k)
	se := math.Sqrt(sigma2 * inv.At(1, 1))
	if se == 0 || math.IsNaN(se) {
		return adfFit{}, fmt.Errorf("%w: zero standard error", errSingular)
	}
	return adfFit{stat: beta.AtVec(1) / se, ssr: ssr, nobs: rows, k: k}, nil
}

func (f adfFit) aic() float64 {
	n := float64(f.nobs)
	return n*math.Log(f.ssr/n) + 2*float64(f.k)
}

// normalize rescales the series by its mean absolute level; the ADF statistic is scale invariant.
func normalize(series []float64) []float64 {
	scale := 0.0
	for _, v := range series {
		scale += math.Abs(v)
	}
	scale /= float64(len(series))
	if scale == 0 {
		scale = 1
	}
	mean := stat.Mean(series, nil)
	out := make([]float64, len(series))
	for i, v := range series {
		out[i] = (v - mean) / scale
	}
	return out
}
