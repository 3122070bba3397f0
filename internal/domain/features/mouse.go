package features

import (
	"math"

	"github.com/okian/nocaptcha/internal/domain/model"
)

// Mouse computes pointer features.
func Mouse(samples []model.MouseSample, opts ...Option) model.MouseVector {
	o := newOptions(opts)

	// microMovements, pathSegmentation and dragPatternVariation are one signal.
	step := meanStepDistance(samples)

	times := make([]float64, len(samples))
	for i, s := range samples {
		times[i] = s.T
	}

	predictive := literalPrediction(times)
	if o.forecast {
		predictive = forecastPrediction(times)
	}

	return model.MouseVector{
		MicroMovements:       step,
		PathSegmentation:     step,
		GestureComplexity:    gestureComplexity(samples),
		DragPatternVariation: step,
		TimingSync:           meanAbsDeviation(times),
		PredictiveModel:      predictive,
	}
}

// meanStepDistance is the mean Euclidean distance over consecutive pairs.
func meanStepDistance(samples []model.MouseSample) model.Value {
	if len(samples) < 2 {
		return model.Undefined()
	}
	var sum float64
	for i := 1; i < len(samples); i++ {
		sum += math.Hypot(samples[i].X-samples[i-1].X, samples[i].Y-samples[i-1].Y)
	}
	return ratio(sum, len(samples)-1)
}

// gestureComplexity sums |atan2(dy, dx)| over consecutive pairs and divides by 2*pi*N.
func gestureComplexity(samples []model.MouseSample) model.Value {
	n := len(samples)
	if n == 0 {
		return model.Undefined()
	}
	var sum float64
	for i := 1; i < n; i++ {
		sum += math.Abs(math.Atan2(samples[i].Y-samples[i-1].Y, samples[i].X-samples[i-1].X))
	}
	return model.Defined(sum / (2 * math.Pi * float64(n)))
}

// literalPrediction keeps the legacy recurrence predicted = t[i-1] + (t[i]-t[i-1]),
// which reproduces t[i] and so reports zero error for any input with a pair.
func literalPrediction(times []float64) model.Value {
	if len(times) < 2 {
		return model.Undefined()
	}
	var sum float64
	for i := 1; i < len(times); i++ {
		predicted := times[i-1] + (times[i] - times[i-1])
		d := predicted - times[i]
		sum += d * d
	}
	return ratio(sum, len(times)-1)
}

// forecastPrediction predicts t[i] from the two prior events:
// predicted = t[i-1] + (t[i-1] - t[i-2]).
func forecastPrediction(times []float64) model.Value {
	if len(times) < 3 {
		return model.Undefined()
	}
	var sum float64
	for i := 2; i < len(times); i++ {
		predicted := times[i-1] + (times[i-1] - times[i-2])
		d := predicted - times[i]
		sum += d * d
	}
	return ratio(sum, len(times)-2)
}
