package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/tee-time-reservation/internal/model"
)

// ReservationRepo persists reservations, their memberships and their
// invitations in a SQL database.  Every write goes through a single
// transaction that is guarded by the version column of the reservation
// row: a concurrent writer that committed first makes the conditional
// UPDATE match zero rows and the attempt fails with ErrConflict.  The
// queries only use '?' placeholders and portable types so the same
// repository runs on MySQL and SQLite.  All timestamps are stored as
// UTC epoch milliseconds.
type ReservationRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo {
	return &ReservationRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// queryer is satisfied by both *sql.DB and *sql.Tx so the loaders can be
// shared between plain reads and transaction bodies.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const reservationColumns = `id, owner_id, capacity, occupancy, status, visibility,
	scheduled_at, location, description, version, created_at, updated_at`

// Create inserts a reservation together with its initial memberships
// (normally the owner's confirmed membership) in one transaction.  The
// stored version starts at 1.  A duplicate id is reported as ErrConflict.
func (r *ReservationRepo) Create(ctx context.Context, state model.ReservationState) (model.ReservationState, error) {
	out := state.Clone()
	out.Reservation.Version = 1

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ReservationState{}, classify(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res := out.Reservation
	const ins = `INSERT INTO reservations (` + reservationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, ins,
		res.ID, res.OwnerID, res.Capacity, res.Occupancy, string(res.Status), string(res.Visibility),
		toMillis(res.ScheduledAt), res.Location, res.Description, res.Version,
		toMillis(res.CreatedAt), toMillis(res.UpdatedAt),
	); err != nil {
		return model.ReservationState{}, classify(err)
	}
	for _, m := range out.Memberships {
		if err := insertMembershipTx(ctx, tx, res.ID, m); err != nil {
			return model.ReservationState{}, classify(err)
		}
	}
	for _, inv := range out.Invitations {
		if err := insertInvitationTx(ctx, tx, res.ID, inv); err != nil {
			return model.ReservationState{}, classify(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.ReservationState{}, classify(err)
	}
	committed = true
	return out, nil
}

// Get returns the reservation row.  ErrNotFound is returned when no
// reservation with the id exists.
func (r *ReservationRepo) Get(ctx context.Context, id string) (model.Reservation, error) {
	res, err := loadReservation(ctx, r.db, id)
	return res, classify(err)
}

// GetMembership returns the membership of userID in reservation id.
func (r *ReservationRepo) GetMembership(ctx context.Context, id, userID string) (model.Membership, error) {
	const q = `SELECT reservation_id, user_id, status, invited_by, joined_at
		FROM reservation_members WHERE reservation_id = ? AND user_id = ?`
	var row membershipRow
	err := r.db.QueryRowContext(ctx, q, id, userID).Scan(
		&row.ReservationID, &row.UserID, &row.Status, &row.InvitedBy, &row.JoinedAt,
	)
	if err != nil {
		return model.Membership{}, classify(err)
	}
	return row.toModel(), nil
}

// ListMemberships returns every membership of the reservation ordered by
// join time.  An unknown reservation yields ErrNotFound rather than an
// empty list.
func (r *ReservationRepo) ListMemberships(ctx context.Context, id string) ([]model.Membership, error) {
	if _, err := loadReservation(ctx, r.db, id); err != nil {
		return nil, classify(err)
	}
	out, err := loadMemberships(ctx, r.db, id)
	return out, classify(err)
}

// ListInvitations returns every invitation of the reservation ordered by
// creation time.
func (r *ReservationRepo) ListInvitations(ctx context.Context, id string) ([]model.Invitation, error) {
	if _, err := loadReservation(ctx, r.db, id); err != nil {
		return nil, classify(err)
	}
	out, err := loadInvitations(ctx, r.db, id)
	return out, classify(err)
}

// ListPendingInvitations returns up to limit pending invitations created
// before the cutoff, oldest first.  It feeds the expiry sweeper.
func (r *ReservationRepo) ListPendingInvitations(ctx context.Context, before time.Time, limit int) ([]model.Invitation, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT id, reservation_id, inviter_id, invitee_id, status, created_at, resolved_at
		FROM reservation_invitations
		WHERE status = ? AND created_at < ?
		ORDER BY created_at ASC
		LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, string(model.InvitationPending), toMillis(before), limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	out, err := scanInvitations(rows)
	return out, classify(err)
}

// ListUserReservationIDs returns the ids of every reservation userID
// holds a pending or confirmed membership in, newest membership first.  It backs the roster
// when no dedicated index is configured.
func (r *ReservationRepo) ListUserReservationIDs(ctx context.Context, userID string) ([]string, error) {
	const q = `SELECT reservation_id FROM reservation_members
		WHERE user_id = ? AND status <> ? ORDER BY joined_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID, string(model.MembershipDeclined))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify(err)
		}
		ids = append(ids, id)
	}
	return ids, classify(rows.Err())
}

// AtomicUpdate loads the reservation with its memberships and
// invitations inside a transaction, hands a private copy to fn and
// writes back whatever fn changed.  The reservation row is updated only
// if its version still matches the one that was read; otherwise the
// transaction is rolled back and ErrConflict is returned so the caller
// can retry the whole cycle.  When fn returns an error nothing is
// written and the loaded snapshot is returned with that error.
func (r *ReservationRepo) AtomicUpdate(ctx context.Context, id string, fn func(*model.ReservationState) error) (model.ReservationState, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ReservationState{}, classify(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	snapshot, err := loadStateTx(ctx, tx, id)
	if err != nil {
		return model.ReservationState{}, classify(err)
	}
	next := snapshot.Clone()
	if err := fn(&next); err != nil {
		return snapshot, err
	}

	next.Reservation.ID = snapshot.Reservation.ID
	next.Reservation.OwnerID = snapshot.Reservation.OwnerID
	next.Reservation.CreatedAt = snapshot.Reservation.CreatedAt
	next.Reservation.Version = snapshot.Reservation.Version + 1
	next.Reservation.UpdatedAt = r.now()

	res := next.Reservation
	const upd = `UPDATE reservations
		SET capacity = ?, occupancy = ?, status = ?, visibility = ?, scheduled_at = ?,
			location = ?, description = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`
	result, err := tx.ExecContext(ctx, upd,
		res.Capacity, res.Occupancy, string(res.Status), string(res.Visibility), toMillis(res.ScheduledAt),
		res.Location, res.Description, res.Version, toMillis(res.UpdatedAt),
		res.ID, snapshot.Reservation.Version,
	)
	if err != nil {
		return snapshot, classify(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return snapshot, classify(err)
	}
	if n == 0 {
		return snapshot, ErrConflict
	}
	if err := writeMembershipsTx(ctx, tx, id, snapshot.Memberships, next.Memberships); err != nil {
		return snapshot, classify(err)
	}
	if err := writeInvitationsTx(ctx, tx, id, snapshot.Invitations, next.Invitations); err != nil {
		return snapshot, classify(err)
	}
	if err := tx.Commit(); err != nil {
		return snapshot, classify(err)
	}
	committed = true
	return next, nil
}

func loadStateTx(ctx context.Context, q queryer, id string) (model.ReservationState, error) {
	res, err := loadReservation(ctx, q, id)
	if err != nil {
		return model.ReservationState{}, err
	}
	members, err := loadMemberships(ctx, q, id)
	if err != nil {
		return model.ReservationState{}, err
	}
	invites, err := loadInvitations(ctx, q, id)
	if err != nil {
		return model.ReservationState{}, err
	}
	return model.ReservationState{Reservation: res, Memberships: members, Invitations: invites}, nil
}

func loadReservation(ctx context.Context, q queryer, id string) (model.Reservation, error) {
	var row reservationRow
	err := q.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id).
		Scan(row.scanArgs()...)
	if err != nil {
		return model.Reservation{}, err
	}
	return row.toModel(), nil
}

func loadMemberships(ctx context.Context, q queryer, id string) ([]model.Membership, error) {
	const sel = `SELECT reservation_id, user_id, status, invited_by, joined_at
		FROM reservation_members WHERE reservation_id = ? ORDER BY joined_at ASC, user_id ASC`
	rows, err := q.QueryContext(ctx, sel, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Membership, 0)
	for rows.Next() {
		var row membershipRow
		if err := rows.Scan(&row.ReservationID, &row.UserID, &row.Status, &row.InvitedBy, &row.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, row.toModel())
	}
	return out, rows.Err()
}

func loadInvitations(ctx context.Context, q queryer, id string) ([]model.Invitation, error) {
	const sel = `SELECT id, reservation_id, inviter_id, invitee_id, status, created_at, resolved_at
		FROM reservation_invitations WHERE reservation_id = ? ORDER BY created_at ASC, id ASC`
	rows, err := q.QueryContext(ctx, sel, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInvitations(rows)
}

func scanInvitations(rows *sql.Rows) ([]model.Invitation, error) {
	out := make([]model.Invitation, 0)
	for rows.Next() {
		var row invitationRow
		if err := rows.Scan(&row.ID, &row.ReservationID, &row.InviterID, &row.InviteeID,
			&row.Status, &row.CreatedAt, &row.ResolvedAt); err != nil {
			return nil, err
		}
		out = append(out, row.toModel())
	}
	return out, rows.Err()
}

func insertMembershipTx(ctx context.Context, tx *sql.Tx, id string, m model.Membership) error {
	const ins = `INSERT INTO reservation_members (reservation_id, user_id, status, invited_by, joined_at)
		VALUES (?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, ins, id, m.UserID, string(m.Status), nullString(m.InvitedBy), toMillis(m.JoinedAt))
	return err
}

func insertInvitationTx(ctx context.Context, tx *sql.Tx, id string, inv model.Invitation) error {
	const ins = `INSERT INTO reservation_invitations
		(id, reservation_id, inviter_id, invitee_id, status, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, ins, inv.ID, id, inv.InviterID, inv.InviteeID,
		string(inv.Status), toMillis(inv.CreatedAt), nullMillis(inv.ResolvedAt))
	return err
}

// writeMembershipsTx applies the difference between two membership sets:
// new users are inserted, changed rows updated and missing users deleted.
func writeMembershipsTx(ctx context.Context, tx *sql.Tx, id string, before, after []model.Membership) error {
	prev := make(map[string]model.Membership, len(before))
	for _, m := range before {
		prev[m.UserID] = m
	}
	seen := make(map[string]struct{}, len(after))
	for _, m := range after {
		if _, dup := seen[m.UserID]; dup {
			return fmt.Errorf("duplicate membership for user %q", m.UserID)
		}
		seen[m.UserID] = struct{}{}
		old, ok := prev[m.UserID]
		switch {
		case !ok:
			if err := insertMembershipTx(ctx, tx, id, m); err != nil {
				return err
			}
		case !sameMembership(old, m):
			const upd = `UPDATE reservation_members SET status = ?, invited_by = ?, joined_at = ?
				WHERE reservation_id = ? AND user_id = ?`
			if _, err := tx.ExecContext(ctx, upd, string(m.Status), nullString(m.InvitedBy),
				toMillis(m.JoinedAt), id, m.UserID); err != nil {
				return err
			}
		}
	}
	for userID := range prev {
		if _, ok := seen[userID]; ok {
			continue
		}
		const del = `DELETE FROM reservation_members WHERE reservation_id = ? AND user_id = ?`
		if _, err := tx.ExecContext(ctx, del, id, userID); err != nil {
			return err
		}
	}
	return nil
}

// writeInvitationsTx inserts new invitations and persists status changes.
// Invitations are never deleted.
func writeInvitationsTx(ctx context.Context, tx *sql.Tx, id string, before, after []model.Invitation) error {
	prev := make(map[string]model.Invitation, len(before))
	for _, inv := range before {
		prev[inv.ID] = inv
	}
	for _, inv := range after {
		old, ok := prev[inv.ID]
		if !ok {
			if err := insertInvitationTx(ctx, tx, id, inv); err != nil {
				return err
			}
			continue
		}
		if sameInvitation(old, inv) {
			continue
		}
		const upd = `UPDATE reservation_invitations SET status = ?, resolved_at = ?
			WHERE id = ? AND reservation_id = ?`
		if _, err := tx.ExecContext(ctx, upd, string(inv.Status), nullMillis(inv.ResolvedAt), inv.ID, id); err != nil {
			return err
		}
	}
	if len(after) < len(before) {
		return errors.New("invitations cannot be deleted")
	}
	return nil
}
