package models

// All lists every table model in creation order.
func All() []interface{} {
	return []interface{}{
		(*User)(nil),
		(*Seller)(nil),
		(*Event)(nil),
		(*Seat)(nil),
		(*Coupon)(nil),
		(*Booking)(nil),
		(*Order)(nil),
		(*Ticket)(nil),
		(*LedgerEntry)(nil),
		(*ScanLog)(nil),
		(*Withdrawal)(nil),
		(*Blog)(nil),
		(*Banner)(nil),
	}
}
