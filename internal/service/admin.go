package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/iliyamo/lingua-enrollment/internal/model"
	"github.com/iliyamo/lingua-enrollment/internal/repository"
)

// TeacherStore is the teacher table as used by administrators.
type TeacherStore interface {
	Create(ctx context.Context, name string) (*model.Teacher, error)
	GetByID(ctx context.Context, id uint64) (*model.Teacher, error)
	List(ctx context.Context) ([]model.Teacher, error)
	Delete(ctx context.Context, id uint64) error
}

// SlotStore is the timeslot table as used by administrators.
type SlotStore interface {
	SlotReader
	Create(ctx context.Context, teacherID uint64, day model.Weekday, clock string) (*model.Timeslot, error)
	GetByID(ctx context.Context, id uint64) (*model.Timeslot, error)
	Delete(ctx context.Context, id uint64) error
}

// AdminSlotView is a catalog entry together with the slot's full history.
type AdminSlotView struct {
	SlotView
	Reservations []model.Reservation `json:"reservations"`
}

// AdminService backs the administrator endpoints.  Every state change on
// a slot happens under the same timeslot lock as holds and confirmations.
type AdminService struct {
	teachers TeacherStore
	slots    SlotStore
	ledger   repository.Ledger
	holdTTL  time.Duration
	now      func() time.Time
}

// NewAdminService builds an AdminService.  holdTTL is the default expiry
// of admin-created pending rows.
func NewAdminService(teachers TeacherStore, slots SlotStore, ledger repository.Ledger, holdTTL time.Duration) *AdminService {
	if holdTTL <= 0 {
		holdTTL = DefaultHoldDuration
	}
	return &AdminService{teachers: teachers, slots: slots, ledger: ledger, holdTTL: holdTTL, now: time.Now}
}

// CreateTeacher adds a teacher.
func (s *AdminService) CreateTeacher(ctx context.Context, name string) (*model.Teacher, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	return s.teachers.Create(ctx, name)
}

// ListTeachers lists all teachers.
func (s *AdminService) ListTeachers(ctx context.Context) ([]model.Teacher, error) {
	return s.teachers.List(ctx)
}

// DeleteTeacher removes a teacher and their slots.  ErrConflict while any
// slot is paid for.
func (s *AdminService) DeleteTeacher(ctx context.Context, id uint64) error {
	return s.teachers.Delete(ctx, id)
}

// CreateSlot adds a weekly timeslot.  day is a weekday name and clock is
// HH:MM.
func (s *AdminService) CreateSlot(ctx context.Context, teacherID uint64, day, clock string) (*model.Timeslot, error) {
	if teacherID == 0 {
		return nil, invalid("teacher_id", "is required")
	}
	wd, err := model.ParseWeekday(day)
	if err != nil {
		return nil, invalid("weekday", "%v", err)
	}
	c, err := model.ParseClock(clock)
	if err != nil {
		return nil, invalid("time", "%v", err)
	}
	slot, err := s.slots.Create(ctx, teacherID, wd, c)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, invalid("teacher_id", "unknown teacher %d", teacherID)
	}
	return slot, err
}

// DeleteSlot removes a slot.  ErrConflict while it carries a confirmed
// reservation.
func (s *AdminService) DeleteSlot(ctx context.Context, id uint64) error {
	return s.slots.Delete(ctx, id)
}

// ListSlots returns every slot with its reservations, optionally for one
// teacher.
func (s *AdminService) ListSlots(ctx context.Context, teacherID uint64) ([]AdminSlotView, error) {
	rows, err := s.slots.ListWithOccupancy(ctx, s.now().UTC(), repository.SlotFilter{TeacherID: teacherID})
	if err != nil {
		return nil, storageErr("list slots", err)
	}
	out := make([]AdminSlotView, 0, len(rows))
	for _, r := range rows {
		history, err := s.ledger.ListBySlot(ctx, r.SlotID)
		if err != nil {
			return nil, storageErr("list reservations", err)
		}
		if history == nil {
			history = []model.Reservation{}
		}
		out = append(out, AdminSlotView{
			SlotView: SlotView{
				SlotID:  r.SlotID,
				Teacher: TeacherRef{ID: r.TeacherID, Name: r.TeacherName},
				Weekday: r.Weekday,
				Time:    displayClock(r.StartTime),
				State:   r.Occupancy.State(),
			},
			Reservations: history,
		})
	}
	return out, nil
}

// ReleaseSlot cancels every pending, blocked and confirmed row on the
// slot.  It is the only way a paid reservation is ever unwound.
func (s *AdminService) ReleaseSlot(ctx context.Context, slotID uint64) (int64, error) {
	var n int64
	err := s.ledger.WithTx(ctx, func(tx repository.LedgerTx) error {
		if err := lockOne(ctx, tx, slotID); err != nil {
			return err
		}
		var err error
		n, err = tx.CancelOnSlot(ctx, slotID, model.StatePending, model.StateBlocked, model.StateConfirmed)
		return err
	})
	if err != nil {
		return 0, err
	}
	log.Printf("admin: released slot=%d cancelled=%d", slotID, n)
	return n, nil
}

// SetSlotState forces a slot into blocked, pending or available.
// Available is a release.  Blocking or holding a slot that carries a
// confirmed reservation is refused with ErrConflict.  holdMinutes sets
// the expiry of a forced pending row; zero means the default hold time.
func (s *AdminService) SetSlotState(ctx context.Context, slotID uint64, target model.SlotState, holdMinutes int) error {
	switch target {
	case model.SlotBlocked, model.SlotPending, model.SlotAvailable:
	case model.SlotOccupied:
		return invalid("state", "occupied is reached only through payment")
	default:
		return invalid("state", "unknown slot state %q", target)
	}
	if holdMinutes < 0 {
		return invalid("hold_minutes", "must not be negative")
	}
	ttl := s.holdTTL
	if holdMinutes > 0 {
		ttl = time.Duration(holdMinutes) * time.Minute
	}

	now := s.now().UTC()
	return s.ledger.WithTx(ctx, func(tx repository.LedgerTx) error {
		if err := lockOne(ctx, tx, slotID); err != nil {
			return err
		}
		if target == model.SlotAvailable {
			n, err := tx.CancelOnSlot(ctx, slotID, model.StatePending, model.StateBlocked, model.StateConfirmed)
			if err != nil {
				return err
			}
			log.Printf("admin: slot=%d forced to available cancelled=%d", slotID, n)
			return nil
		}
		paid, err := tx.HasConfirmed(ctx, slotID)
		if err != nil {
			return err
		}
		if paid {
			return fmt.Errorf("%w: slot %d has a confirmed reservation; release it first", ErrConflict, slotID)
		}
		if _, err := tx.CancelOnSlot(ctx, slotID, model.StatePending, model.StateBlocked); err != nil {
			return err
		}

		switch target {
		case model.SlotBlocked:
			err = tx.InsertReservation(ctx, &model.Reservation{
				TimeslotID:   slotID,
				StudentName:  "admin",
				State:        model.StateBlocked,
			})
		case model.SlotPending:
			exp := now.Add(ttl)
			err = tx.InsertReservation(ctx, &model.Reservation{
				TimeslotID:    slotID,
				StudentName:   "admin",
				State:         model.StatePending,
				HoldExpiresAt: &exp,
			})
		}
		if err != nil {
			return err
		}
		log.Printf("admin: slot=%d forced to %s", slotID, target)
		return nil
	})
}

// ReservationsByGroup lists the rows of one checkout for manual
// reconciliation.
func (s *AdminService) ReservationsByGroup(ctx context.Context, groupID string) ([]model.Reservation, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, invalid("group_correlation_id", "is required")
	}
	rows, err := s.ledger.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, storageErr("list group", err)
	}
	if rows == nil {
		rows = []model.Reservation{}
	}
	return rows, nil
}

func lockOne(ctx context.Context, tx repository.LedgerTx, slotID uint64) error {
	found, err := tx.LockSlots(ctx, []uint64{slotID})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return ErrNotFound
	}
	return nil
}
