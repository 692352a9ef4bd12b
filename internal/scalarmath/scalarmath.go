// Package scalarmath provides the rational-arithmetic primitives the
// aggregator and safety gate build on: averages and medians over ordered
// samples, relative change between two rates, and the reducer that squeezes
// an arbitrary-precision rational into a pair of 64-bit unsigned integers.
package scalarmath

import (
	"errors"
	"math/big"
	"sort"
)

// ErrNoValue is returned by Average and Median when given no samples.
var ErrNoValue = errors.New("scalarmath: no value")

// ErrZeroReference is returned by RelativeChange when the reference rate is zero.
var ErrZeroReference = errors.New("scalarmath: zero reference")

var (
	two     = big.NewRat(2, 1)
	hundred = big.NewRat(100, 1)
	maxU64  = new(big.Int).SetUint64(^uint64(0))
)

// Average returns the arithmetic mean of samples as an exact rational.
func Average(samples []*big.Rat) (*big.Rat, error) {
	if len(samples) == 0 {
		return nil, ErrNoValue
	}
	sum := new(big.Rat)
	for _, s := range samples {
		sum.Add(sum, s)
	}
	return sum.Quo(sum, big.NewRat(int64(len(samples)), 1)), nil
}

// Median sorts a copy of samples and returns the middle value (odd count)
// or the average of the two central values (even count).
func Median(samples []*big.Rat) (*big.Rat, error) {
	n := len(samples)
	if n == 0 {
		return nil, ErrNoValue
	}
	sorted := make([]*big.Rat, n)
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })

	if n%2 == 1 {
		return new(big.Rat).Set(sorted[n/2]), nil
	}
	mid := new(big.Rat).Add(sorted[n/2-1], sorted[n/2])
	return mid.Quo(mid, two), nil
}

// RelativeChange returns |cand-ref|*100/ref as a percentage rational.
func RelativeChange(ref, cand *big.Rat) (*big.Rat, error) {
	if ref.Sign() == 0 {
		return nil, ErrZeroReference
	}
	diff := new(big.Rat).Sub(cand, ref)
	diff.Abs(diff)
	diff.Mul(diff, hundred)
	return diff.Quo(diff, ref), nil
}

// Fraction is an on-chain-representable ratio of unsigned 64-bit integers.
type Fraction struct {
	Num uint64
	Den uint64
}

// fitsU64 reports whether both components of r already fit unsigned 64 bits.
func fitsU64(r *big.Rat) bool {
	num := r.Num()
	den := r.Denom()
	if num.Sign() < 0 {
		num = new(big.Int).Neg(num)
	}
	return num.CmpAbs(maxU64) <= 0 && den.CmpAbs(maxU64) <= 0
}

// ReduceToFraction squeezes an arbitrary-precision rational into a Fraction
// whose numerator and denominator each fit in 64 bits, staying as close to
// target as the halve-and-gcd-reduce loop converges. target must be
// non-negative; the on-chain rate is always a price, never negative.
func ReduceToFraction(target *big.Rat) Fraction {
	num := new(big.Int).Set(target.Num())
	den := new(big.Int).Set(target.Denom())

	for {
		r := new(big.Rat).SetFrac(num, den)
		if fitsU64(r) {
			return Fraction{Num: num.Uint64(), Den: den.Uint64()}
		}
		num = new(big.Int).Rsh(num, 1)
		den = new(big.Int).Rsh(den, 1)
		if num.Sign() == 0 {
			num = big.NewInt(1)
		}
		if den.Sign() == 0 {
			den = big.NewInt(1)
		}
		g := new(big.Int).GCD(nil, nil, new(big.Int).Abs(num), new(big.Int).Abs(den))
		if g.Sign() > 0 && g.Cmp(big.NewInt(1)) != 0 {
			num.Quo(num, g)
			den.Quo(den, g)
		}
	}
}

// SampleToRate converts a validated non-negative EUR-per-CCD price sample
// into a CCD-per-EUR rational by inversion.
func SampleToRate(price float64) (*big.Rat, error) {
	r := new(big.Rat)
	if _, ok := r.SetString(formatFloat(price)); !ok {
		return nil, errors.New("scalarmath: could not convert sample to rational")
	}
	if r.Sign() <= 0 {
		return nil, errors.New("scalarmath: non-positive sample cannot be inverted")
	}
	return r.Inv(r), nil
}

func formatFloat(f float64) string {
	return big.NewFloat(f).Text('f', -1)
}
