package dedupe_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	dedupe "github.com/okian/tops/internal/domain/dedupe"
	"github.com/okian/tops/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()
		id := uuid.New()

		Convey("When an identifier is recorded for the first time", func() {
			seen := d.SeenAndRecord(ctx, id)

			Convey("Then it is reported as new and counted", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
				So(d.Contains(ctx, id), ShouldBeTrue)
			})

			Convey("And recorded again", func() {
				again := d.SeenAndRecord(ctx, id)

				Convey("Then it is reported as seen without growing", func() {
					So(again, ShouldBeTrue)
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And unrecorded", func() {
				d.Unrecord(ctx, id)

				Convey("Then it may be recorded again", func() {
					So(d.Contains(ctx, id), ShouldBeFalse)
					So(d.Size(), ShouldEqual, 0)
					So(d.SeenAndRecord(ctx, id), ShouldBeFalse)
				})
			})
		})

		Convey("When unrecording an unknown identifier", func() {
			d.Unrecord(ctx, uuid.New())

			Convey("Then the size is unchanged", func() {
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When reset after several records", func() {
			for i := 0; i < 5; i++ {
				d.SeenAndRecord(ctx, uuid.New())
			}
			d.Reset(ctx)

			Convey("Then nothing is recorded", func() {
				So(d.Size(), ShouldEqual, 0)
			})
		})
	})
}

func TestBoundedDeduper(t *testing.T) {
	Convey("Given a deduper bounded to two identifiers", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))
		a, b, c := uuid.New(), uuid.New(), uuid.New()

		So(d.SeenAndRecord(ctx, a), ShouldBeFalse)
		So(d.SeenAndRecord(ctx, b), ShouldBeFalse)

		Convey("Then a third identifier is refused without evicting", func() {
			So(d.SeenAndRecord(ctx, c), ShouldBeTrue)
			So(d.Contains(ctx, a), ShouldBeTrue)
			So(d.Contains(ctx, b), ShouldBeTrue)
			So(d.Contains(ctx, c), ShouldBeFalse)
		})
	})
}

func TestDeduperConcurrentRecord(t *testing.T) {
	Convey("Given many goroutines racing on one identifier", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()
		id := model.Identifier(uuid.New())

		var wg sync.WaitGroup
		var mu sync.Mutex
		winners := 0
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !d.SeenAndRecord(ctx, id) {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		So(winners, ShouldEqual, 1)
		So(d.Size(), ShouldEqual, 1)
	})
}
