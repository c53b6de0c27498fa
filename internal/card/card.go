// internal/card/card.go
//
// Card model for the SET deck.
// Responsibilities:
//   - Encode/decode the 81 cards as 4-digit ternary codes ("0000".."2222").
//   - Evaluate the SET predicate over three cards.
//   - Complete a pair of cards into the unique SET triple.
//
// Digit order in a code is fixed for the whole server:
//
//	position 0: color   (0 red,      1 purple,  2 green)
//	position 1: shape   (0 squiggle, 1 diamond, 2 oval)
//	position 2: shading (0 solid,    1 striped, 2 open)
//	position 3: number  (0 one,      1 two,     2 three)
package card

import (
	"errors"
	"fmt"
)

const (
	// Attributes is the number of attributes per card.
	Attributes = 4
	// Count is the size of the universe (3^4).
	Count = 81
)

// ErrInvalidCardCode is returned when a code is not exactly 4 digits in {0,1,2}.
var ErrInvalidCardCode = errors.New("invalid card code")

// Card is one of the 81 cards. The value is the code read as a base-3 number,
// so "0000" is 0 and "2222" is 80.
type Card uint8

// Values holds the decoded attributes of a card in code order.
type Values [Attributes]uint8

// weights of each code position in base 3.
var weights = [Attributes]uint8{27, 9, 3, 1}

// Parse decodes a 4-digit code.
func Parse(code string) (Card, error) {
	if len(code) != Attributes {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCardCode, code)
	}
	var c uint8
	for i := 0; i < Attributes; i++ {
		d := code[i]
		if d < '0' || d > '2' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidCardCode, code)
		}
		c += (d - '0') * weights[i]
	}
	return Card(c), nil
}

// MustParse is Parse for literals in tests and fixtures.
func MustParse(code string) Card {
	c, err := Parse(code)
	if err != nil {
		panic(err)
	}
	return c
}

// FromValues builds the card with the given attributes.
// Values outside {0,1,2} yield an error.
func FromValues(v Values) (Card, error) {
	var c uint8
	for i, x := range v {
		if x > 2 {
			return 0, fmt.Errorf("%w: attribute %d = %d", ErrInvalidCardCode, i, x)
		}
		c += x * weights[i]
	}
	return Card(c), nil
}

// Valid reports whether c is inside the universe.
func (c Card) Valid() bool { return c < Count }

// Values decodes the four attributes.
func (c Card) Values() Values {
	var v Values
	n := uint8(c)
	for i := Attributes - 1; i >= 0; i-- {
		v[i] = n % 3
		n /= 3
	}
	return v
}

// Code returns the 4-digit identifier, e.g. "0120".
func (c Card) Code() string {
	v := c.Values()
	b := make([]byte, Attributes)
	for i, x := range v {
		b[i] = '0' + x
	}
	return string(b)
}

func (c Card) String() string {
	if !c.Valid() {
		return "Invalid"
	}
	return c.Code()
}

// MarshalText encodes the card as its code so JSON carries "0120" rather than 15.
func (c Card) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: value %d", ErrInvalidCardCode, uint8(c))
	}
	return []byte(c.Code()), nil
}

// UnmarshalText decodes a 4-digit code.
func (c *Card) UnmarshalText(b []byte) error {
	p, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = p
	return nil
}

// IsSet reports whether a, b and c form a SET: for every attribute the three
// values are all equal or all distinct. With values in {0,1,2} that holds
// exactly when each attribute sums to 0 mod 3.
func IsSet(a, b, c Card) bool {
	va, vb, vc := a.Values(), b.Values(), c.Values()
	for i := 0; i < Attributes; i++ {
		if (va[i]+vb[i]+vc[i])%3 != 0 {
			return false
		}
	}
	return true
}

// Third returns the only card that forms a SET with a and b.
// For a == b it returns a.
func Third(a, b Card) Card {
	va, vb := a.Values(), b.Values()
	var v Values
	for i := 0; i < Attributes; i++ {
		v[i] = (6 - va[i] - vb[i]) % 3
	}
	c, _ := FromValues(v)
	return c
}

// Universe returns all 81 cards in code order.
func Universe() []Card {
	out := make([]Card, Count)
	for i := range out {
		out[i] = Card(i)
	}
	return out
}
