package domain

import "fmt"

// Direction selects the inward or outward transaction set on the portal.
type Direction string

const (
	DirectionInward  Direction = "In"
	DirectionOutward Direction = "Out"
)

// Directions lists both directions in download order.
var Directions = []Direction{DirectionInward, DirectionOutward}

// Prefix is the file name prefix for exports of this direction.
func (d Direction) Prefix() string {
	return string(d)
}

// Validate returns an error for anything other than In or Out.
func (d Direction) Validate() error {
	switch d {
	case DirectionInward, DirectionOutward:
		return nil
	default:
		return fmt.Errorf("invalid direction: %q", string(d))
	}
}
