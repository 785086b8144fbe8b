package service

import (
	"context"
	"time"

	"github.com/iliyamo/lingua-enrollment/internal/model"
	"github.com/iliyamo/lingua-enrollment/internal/repository"
)

// SlotReader is the read side of the timeslot table.
type SlotReader interface {
	ListWithOccupancy(ctx context.Context, now time.Time, f repository.SlotFilter) ([]repository.SlotRow, error)
}

// TeacherLister lists teachers.
type TeacherLister interface {
	List(ctx context.Context) ([]model.Teacher, error)
}

// TeacherRef is the teacher part of a catalog entry.
type TeacherRef struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// SlotView is one entry of the public catalog.
type SlotView struct {
	SlotID  uint64          `json:"slot_id"`
	Teacher TeacherRef      `json:"teacher"`
	Weekday model.Weekday   `json:"weekday"`
	Time    string          `json:"time"`
	State   model.SlotState `json:"state"`
}

// CatalogFilter narrows ListSlots.  Zero values mean no filter.
type CatalogFilter struct {
	TeacherID uint64
	State     model.SlotState
}

// CatalogService answers read-only catalog queries from the committed
// ledger.  Results are never cached because slot state changes with every
// hold and every expiry.
type CatalogService struct {
	slots    SlotReader
	teachers TeacherLister
	now      func() time.Time
}

// NewCatalogService builds a CatalogService.
func NewCatalogService(slots SlotReader, teachers TeacherLister) *CatalogService {
	return &CatalogService{slots: slots, teachers: teachers, now: time.Now}
}

// ListSlots returns every timeslot with its derived display state.
func (s *CatalogService) ListSlots(ctx context.Context, f CatalogFilter) ([]SlotView, error) {
	rows, err := s.slots.ListWithOccupancy(ctx, s.now().UTC(), repository.SlotFilter{TeacherID: f.TeacherID})
	if err != nil {
		return nil, storageErr("list slots", err)
	}
	out := make([]SlotView, 0, len(rows))
	for _, r := range rows {
		v := SlotView{
			SlotID:  r.SlotID,
			Teacher: TeacherRef{ID: r.TeacherID, Name: r.TeacherName},
			Weekday: r.Weekday,
			Time:    displayClock(r.StartTime),
			State:   r.Occupancy.State(),
		}
		if f.State != "" && v.State != f.State {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// ListTeachers returns all teachers ordered by name.
func (s *CatalogService) ListTeachers(ctx context.Context) ([]model.Teacher, error) {
	ts, err := s.teachers.List(ctx)
	if err != nil {
		return nil, storageErr("list teachers", err)
	}
	if ts == nil {
		ts = []model.Teacher{}
	}
	return ts, nil
}

func displayClock(raw string) string {
	if c, err := model.ParseClock(raw); err == nil {
		return c
	}
	return raw
}
