package common

import (
	"errors"

	"github.com/holiman/uint256"
)

// BasisPoints is the denominator of every rate expressed in bps.
const BasisPoints uint64 = 10_000

var ErrMathOverflow = errors.New("math overflow")

func toUint64(v *uint256.Int) (uint64, error) {
	if !v.IsUint64() {
		return 0, ErrMathOverflow
	}
	return v.Uint64(), nil
}

// MulDiv returns floor(a*b/d). The product itself must fit in 64 bits and d
// must be non-zero.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrMathOverflow
	}
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	if !product.IsUint64() {
		return 0, ErrMathOverflow
	}
	return toUint64(product.Div(product, uint256.NewInt(d)))
}

func CheckedAdd(a, b uint64) (uint64, error) {
	return toUint64(new(uint256.Int).Add(uint256.NewInt(a), uint256.NewInt(b)))
}

func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrMathOverflow
	}
	return a - b, nil
}

func CheckedMul(a, b uint64) (uint64, error) {
	return toUint64(new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b)))
}

// FeeBps splits amount into floor(amount*bps/10000) and the remainder.
// fee + net == amount whenever err is nil.
func FeeBps(amount, bps uint64) (fee, net uint64, err error) {
	fee, err = MulDiv(amount, bps, BasisPoints)
	if err != nil {
		return 0, 0, err
	}
	net, err = CheckedSub(amount, fee)
	if err != nil {
		return 0, 0, err
	}
	return fee, net, nil
}

// RatioBps returns floor(part*10000/whole) without requiring the
// intermediate product to fit in 64 bits.
func RatioBps(part, whole uint64) (uint64, error) {
	if whole == 0 {
		return 0, ErrMathOverflow
	}
	scaled := new(uint256.Int).Mul(uint256.NewInt(part), uint256.NewInt(BasisPoints))
	return toUint64(scaled.Div(scaled, uint256.NewInt(whole)))
}
