package core

import (
	"database/sql/driver"
	"fmt"

	"cosmossdk.io/math"
)

// Amount is an arbitrary-precision, non-negative token amount that can be
// stored in a string column.
type Amount struct {
	math.Int
}

// NewAmount returns an Amount holding n.
func NewAmount(n int64) Amount {
	return Amount{Int: math.NewInt(n)}
}

// ParseAmount parses a base-10 integer string.
func ParseAmount(s string) (Amount, error) {
	i, ok := math.NewIntFromString(s)
	if !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	if i.IsNegative() {
		return Amount{}, fmt.Errorf("negative amount %q", s)
	}
	return Amount{Int: i}, nil
}

// ZeroAmount returns a zero Amount.
func ZeroAmount() Amount {
	return Amount{Int: math.ZeroInt()}
}

// IsSet reports whether the amount holds a value.
func (a Amount) IsSet() bool {
	return !a.Int.IsNil()
}

// Equals compares two amounts. Unset amounts are only equal to each other.
func (a Amount) Equals(b Amount) bool {
	if !a.IsSet() || !b.IsSet() {
		return a.IsSet() == b.IsSet()
	}
	return a.Int.Equal(b.Int)
}

// String returns the base-10 representation, "0" when unset.
func (a Amount) String() string {
	if !a.IsSet() {
		return "0"
	}
	return a.Int.String()
}

// GormDataType tells GORM to store amounts as strings.
func (Amount) GormDataType() string {
	return "string"
}

// Value implements driver.Valuer.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		*a = ZeroAmount()
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	case int64:
		*a = NewAmount(v)
		return nil
	default:
		return fmt.Errorf("amount: unsupported scan type %T", src)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalJSON encodes the amount as a quoted decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts a quoted decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
