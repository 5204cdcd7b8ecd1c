package ranking

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/tops/internal/domain/model"
)

func entry(v float64) model.Entry {
	return model.Entry{ID: uuid.New(), Name: "p", Value: v, LastUpdated: time.Unix(0, 0)}
}

func TestCache(t *testing.T) {
	Convey("Given an empty cache", t, func() {
		c := NewCache()

		Convey("Then every read reports absence", func() {
			So(c.Size(), ShouldEqual, 0)
			_, ok := c.MinValue()
			So(ok, ShouldBeFalse)
			_, ok = c.MaxValue()
			So(ok, ShouldBeFalse)
			_, ok = c.EntryAt(1)
			So(ok, ShouldBeFalse)
			So(c.Position(uuid.New()), ShouldEqual, NotFound)
		})

		Convey("When entries are set out of order", func() {
			a, b, d := entry(10), entry(30), entry(20)
			c.SetEntries([]model.Entry{a, b, d})

			Convey("Then they are ranked descending with positions", func() {
				So(c.Size(), ShouldEqual, 3)
				So(c.Position(b.ID), ShouldEqual, 1)
				So(c.Position(d.ID), ShouldEqual, 2)
				So(c.Position(a.ID), ShouldEqual, 3)
				first, ok := c.EntryAt(1)
				So(ok, ShouldBeTrue)
				So(first.ID, ShouldEqual, b.ID)
				So(first.Position, ShouldEqual, 1)
				So(c.Contains(a.ID), ShouldBeTrue)
				So(c.IDs(), ShouldResemble, []model.Identifier{b.ID, d.ID, a.ID})
			})

			Convey("Then min and max come from tail and head", func() {
				lo, _ := c.MinValue()
				hi, _ := c.MaxValue()
				So(lo, ShouldEqual, 10)
				So(hi, ShouldEqual, 30)
			})

			Convey("Then copies do not leak into the snapshot", func() {
				cp := c.Entries()
				cp[0].Value = -1
				hi, _ := c.MaxValue()
				So(hi, ShouldEqual, 30)
			})

			Convey("Then out-of-range positions are absent", func() {
				_, ok := c.EntryAt(0)
				So(ok, ShouldBeFalse)
				_, ok = c.EntryAt(4)
				So(ok, ShouldBeFalse)
			})

			Convey("When cleared", func() {
				c.Clear()
				So(c.Size(), ShouldEqual, 0)
				So(c.Position(a.ID), ShouldEqual, NotFound)
			})
		})
	})
}

func TestCacheConcurrentReplace(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				batch := make([]model.Entry, 5)
				for j := range batch {
					batch[j] = entry(float64(w*1000 + i*10 + j))
				}
				c.SetEntries(batch)
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				entries := c.Entries()
				for k, e := range entries {
					if e.Position != k+1 {
						t.Errorf("torn snapshot: position %d at index %d", e.Position, k)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	if n := c.Size(); n != 5 {
		t.Errorf("expected last snapshot of 5 entries, got %d", n)
	}
}
