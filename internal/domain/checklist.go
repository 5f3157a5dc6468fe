package domain

import "fmt"

// Checked state and rating move together: a checked item always has a
// rating of 1-5, an unchecked item always has rating 0. All mutation goes
// through these two functions so the two fields can never diverge.

// SetRating sets the item's rating, clamped to 0-5, and derives the checked
// state from it. Rating 0 unchecks the item.
func (c *ChecklistItem) SetRating(rating int) {
	if rating < 0 {
		rating = 0
	}
	if rating > 5 {
		rating = 5
	}
	c.Rating = rating
	c.Checked = rating > 0
}

// Validate reports whether the item is in a state the mutators could have
// produced. Items arriving over the wire go through this before they are
// persisted.
func (c ChecklistItem) Validate() error {
	if c.Rating < 0 || c.Rating > 5 {
		return NewValidationError("rating", fmt.Sprintf("rating %d for %q must be between 0 and 5", c.Rating, c.Item))
	}
	if !c.Weight.Valid() {
		return NewValidationError("weight", fmt.Sprintf("unknown weight %d for %q", c.Weight, c.Item))
	}
	if c.Checked != (c.Rating > 0) {
		return NewValidationError("checked", fmt.Sprintf("checked state for %q does not match its rating", c.Item))
	}
	return nil
}

// ToggleChecked flips the checked state. Checking an item with no prior
// rating defaults it to 5; unchecking zeroes the rating.
func (c *ChecklistItem) ToggleChecked() {
	if c.Checked {
		c.Checked = false
		c.Rating = 0
		return
	}
	c.Checked = true
	if c.Rating == 0 {
		c.Rating = 5
	}
}
