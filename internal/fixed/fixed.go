// Package fixed provides an arbitrary-precision fixed-point number: an integer
// scaled by a power of ten that travels with the value. Yield rates use 18
// decimals and USD values use 8; keeping the scale on the value stops the two
// from being mixed silently.
package fixed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Value is an integer raw amount representing raw / 10^decimals.
// The zero Value is 0 with 0 decimals.
type Value struct {
	raw      *big.Int
	decimals int32
}

// New returns a Value for raw scaled by 10^decimals. raw is copied; nil means 0.
func New(raw *big.Int, decimals int32) Value {
	v := Value{raw: new(big.Int), decimals: decimals}
	if raw != nil {
		v.raw.Set(raw)
	}
	return v
}

// FromInt64 is New for small raw amounts.
func FromInt64(raw int64, decimals int32) Value {
	return Value{raw: big.NewInt(raw), decimals: decimals}
}

// Zero returns 0 at the given scale.
func Zero(decimals int32) Value {
	return Value{raw: new(big.Int), decimals: decimals}
}

// Raw returns a copy of the scaled integer.
func (v Value) Raw() *big.Int {
	if v.raw == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v.raw)
}

// Decimals returns the scale of v.
func (v Value) Decimals() int32 { return v.decimals }

// Sign returns -1, 0 or +1.
func (v Value) Sign() int {
	if v.raw == nil {
		return 0
	}
	return v.raw.Sign()
}

// IsZero reports whether v is 0.
func (v Value) IsZero() bool { return v.Sign() == 0 }

// Add returns v+o. Both operands must share a scale.
func (v Value) Add(o Value) Value {
	v.mustMatch(o, "add")
	return Value{raw: new(big.Int).Add(v.Raw(), o.Raw()), decimals: v.decimals}
}

// Cmp compares v and o, which must share a scale.
func (v Value) Cmp(o Value) int {
	v.mustMatch(o, "cmp")
	return v.Raw().Cmp(o.Raw())
}

// Equal reports whether v and o have the same scale and raw amount.
func (v Value) Equal(o Value) bool {
	return v.decimals == o.decimals && v.Raw().Cmp(o.Raw()) == 0
}

// Decimal converts v into a shopspring decimal for display.
func (v Value) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(v.Raw(), -v.decimals)
}

// String renders the human-readable decimal form, e.g. "0.05".
func (v Value) String() string {
	return v.Decimal().String()
}

// MarshalJSON encodes the raw integer as a JSON string so no precision is
// lost in JavaScript clients. The scale is implied by the field.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Raw().String())
}

// UnmarshalJSON accepts the raw integer either quoted or bare. The scale of
// the receiver is preserved.
func (v *Value) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	raw, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("fixed: invalid raw amount %q", s)
	}
	v.raw = raw
	return nil
}

func (v Value) mustMatch(o Value, op string) {
	if v.decimals != o.decimals {
		panic(fmt.Sprintf("fixed: %s of mismatched scales %d and %d", op, v.decimals, o.decimals))
	}
}

// Pow10 returns 10^n as a new big.Int.
func Pow10(n int32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// MulDiv returns a*b / 10^decimals, truncated toward zero. Nil operands are 0.
func MulDiv(a, b *big.Int, decimals int32) *big.Int {
	if a == nil || b == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, Pow10(decimals))
}
