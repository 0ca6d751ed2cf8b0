package model

// ReservationState is the unit read and written by one atomic update: a
// reservation together with its own memberships and invitations.  No
// state ever spans two reservations.
type ReservationState struct {
	Reservation Reservation
	Memberships []Membership
	Invitations []Invitation
}

// Clone returns a deep copy so a transaction body can mutate freely
// without touching the snapshot it was handed.
func (s ReservationState) Clone() ReservationState {
	out := ReservationState{Reservation: s.Reservation}
	if s.Memberships != nil {
		out.Memberships = make([]Membership, len(s.Memberships))
		for i, m := range s.Memberships {
			if m.InvitedBy != nil {
				by := *m.InvitedBy
				m.InvitedBy = &by
			}
			out.Memberships[i] = m
		}
	}
	if s.Invitations != nil {
		out.Invitations = make([]Invitation, len(s.Invitations))
		for i, inv := range s.Invitations {
			if inv.ResolvedAt != nil {
				at := *inv.ResolvedAt
				inv.ResolvedAt = &at
			}
			out.Invitations[i] = inv
		}
	}
	return out
}

// Membership returns the membership of userID, if any.
func (s *ReservationState) Membership(userID string) (Membership, bool) {
	for _, m := range s.Memberships {
		if m.UserID == userID {
			return m, true
		}
	}
	return Membership{}, false
}

// PutMembership inserts m or replaces the existing membership of the same user.
func (s *ReservationState) PutMembership(m Membership) {
	for i := range s.Memberships {
		if s.Memberships[i].UserID == m.UserID {
			s.Memberships[i] = m
			return
		}
	}
	s.Memberships = append(s.Memberships, m)
}

// DeleteMembership drops the membership of userID and reports whether one existed.
func (s *ReservationState) DeleteMembership(userID string) (Membership, bool) {
	for i, m := range s.Memberships {
		if m.UserID == userID {
			s.Memberships = append(s.Memberships[:i], s.Memberships[i+1:]...)
			return m, true
		}
	}
	return Membership{}, false
}

// PendingInvitation returns a pointer to the pending invitation addressed
// to userID so the caller can resolve it in place.
func (s *ReservationState) PendingInvitation(userID string) *Invitation {
	for i := range s.Invitations {
		if s.Invitations[i].InviteeID == userID && s.Invitations[i].Status == InvitationPending {
			return &s.Invitations[i]
		}
	}
	return nil
}

// ConfirmedCount counts confirmed memberships.
func (s *ReservationState) ConfirmedCount() int {
	n := 0
	for _, m := range s.Memberships {
		if m.Status == MembershipConfirmed {
			n++
		}
	}
	return n
}

// Recompute realigns occupancy with the confirmed memberships and
// derives the status from it.  The owner always counts, so occupancy
// never drops below one.
func (s *ReservationState) Recompute() {
	occ := s.ConfirmedCount()
	if occ < 1 {
		occ = 1
	}
	s.Reservation.Occupancy = occ
	s.Reservation.Status = DeriveStatus(s.Reservation.Status, occ, s.Reservation.Capacity)
}
