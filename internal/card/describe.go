package card

import "strings"

var (
	colorNames   = [3]string{"red", "purple", "green"}
	shapeNames   = [3]string{"squiggle", "diamond", "oval"}
	shadingNames = [3]string{"solid", "striped", "open"}
	numberNames  = [3]string{"one", "two", "three"}
)

// Describe renders a card as e.g. "two red striped diamonds".
func (c Card) Describe() string {
	if !c.Valid() {
		return "invalid card"
	}
	v := c.Values()
	shape := shapeNames[v[1]]
	if v[3] > 0 {
		shape += "s"
	}
	return strings.Join([]string{numberNames[v[3]], colorNames[v[0]], shadingNames[v[2]], shape}, " ")
}
