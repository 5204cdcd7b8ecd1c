package model_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	model "github.com/okian/tops/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestEntryOrdering(t *testing.T) {
	convey.Convey("Given entries with mixed values", t, func() {
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		a := model.Entry{ID: uuid.New(), Name: "a", Value: 10, LastUpdated: base}
		b := model.Entry{ID: uuid.New(), Name: "b", Value: 30, LastUpdated: base}
		c := model.Entry{ID: uuid.New(), Name: "c", Value: 10, LastUpdated: base.Add(-time.Second)}

		convey.Convey("When sorted and positioned", func() {
			entries := []model.Entry{a, b, c}
			model.SortEntries(entries)
			model.AssignPositions(entries)

			convey.Convey("Then higher values rank first and earlier updates win ties", func() {
				convey.So(entries[0].Name, convey.ShouldEqual, "b")
				convey.So(entries[1].Name, convey.ShouldEqual, "c")
				convey.So(entries[2].Name, convey.ShouldEqual, "a")
				convey.So(entries[2].Position, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When mutated through helpers", func() {
			moved := a.WithPosition(4).WithValue(99, base.Add(time.Hour)).WithName("renamed")

			convey.Convey("Then the original is untouched", func() {
				convey.So(a.Position, convey.ShouldEqual, 0)
				convey.So(a.Value, convey.ShouldEqual, 10)
				convey.So(moved.Position, convey.ShouldEqual, 4)
				convey.So(moved.Value, convey.ShouldEqual, 99)
				convey.So(moved.Name, convey.ShouldEqual, "renamed")
			})
		})
	})
}

func TestPriority(t *testing.T) {
	convey.Convey("Priorities drain in declared order", t, func() {
		convey.So(model.Priorities[0], convey.ShouldEqual, model.Critical)
		convey.So(model.Priorities[3], convey.ShouldEqual, model.Low)
		convey.So(model.High.String(), convey.ShouldEqual, "HIGH")
		convey.So(model.Priority(9).Valid(), convey.ShouldBeFalse)
		convey.So(model.Priority(9).String(), convey.ShouldEqual, "Priority(9)")
	})
}

func TestUpdateOutcomePredicates(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name            string
		outcome         model.UpdateOutcome
		valueChanged    bool
		positionChanged bool
		entered         bool
		left            bool
	}{
		{"entered", model.Success(id, nil, model.Float(5), nil, model.Int(1)), true, true, true, false},
		{"left", model.Success(id, model.Float(5), model.Float(3), model.Int(2), nil), true, true, false, true},
		{"unchanged", model.Success(id, model.Float(5), model.Float(5), model.Int(2), model.Int(2)), false, false, false, false},
		{"moved", model.Success(id, model.Float(5), model.Float(5), model.Int(3), model.Int(2)), false, true, false, false},
		{"rejected", model.Success(id, nil, model.Float(1), nil, nil), true, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.outcome.ValueChanged(); got != tt.valueChanged {
				t.Errorf("ValueChanged = %v, want %v", got, tt.valueChanged)
			}
			if got := tt.outcome.PositionChanged(); got != tt.positionChanged {
				t.Errorf("PositionChanged = %v, want %v", got, tt.positionChanged)
			}
			if got := tt.outcome.EnteredBoard(); got != tt.entered {
				t.Errorf("EnteredBoard = %v, want %v", got, tt.entered)
			}
			if got := tt.outcome.LeftBoard(); got != tt.left {
				t.Errorf("LeftBoard = %v, want %v", got, tt.left)
			}
		})
	}

	f := model.Failure(id, "Failed to resolve display name")
	if f.OK || f.Reason == "" {
		t.Errorf("unexpected failure outcome %+v", f)
	}
}
