package features

import (
	"math"

	"github.com/okian/nocaptcha/internal/domain/model"
)

// ratio divides num by den, undefined when den is zero.
func ratio(num float64, den int) model.Value {
	if den == 0 {
		return model.Undefined()
	}
	return model.Defined(num / float64(den))
}

func mean(xs []float64) model.Value {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return ratio(sum, len(xs))
}

// variance is the population variance (divide by count).
func variance(xs []float64) model.Value {
	m, ok := mean(xs).Get()
	if !ok {
		return model.Undefined()
	}
	var sq float64
	for _, x := range xs {
		d := x - m
		sq += d * d
	}
	return ratio(sq, len(xs))
}

func stddev(xs []float64) model.Value {
	v, ok := variance(xs).Get()
	if !ok {
		return model.Undefined()
	}
	return model.Defined(math.Sqrt(v))
}

func meanAbsDeviation(xs []float64) model.Value {
	m, ok := mean(xs).Get()
	if !ok {
		return model.Undefined()
	}
	var sum float64
	for _, x := range xs {
		sum += math.Abs(x - m)
	}
	return ratio(sum, len(xs))
}
