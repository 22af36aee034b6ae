package model

// Requester identifies who asks for a change to a booking or queue entry.
// Operators skip ownership checks.
type Requester struct {
	CustomerID string
	Phone      string
	Operator   bool
}

// Owns reports whether the requester may change a record owned by the given
// customer id, falling back to the phone number for guests.
func (r Requester) Owns(customerID *string, phone string) bool {
	if r.Operator {
		return true
	}
	if customerID != nil && *customerID != "" {
		return r.CustomerID != "" && *customerID == r.CustomerID
	}
	return r.Phone != "" && phone == r.Phone
}
