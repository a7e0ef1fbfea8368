package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sakif/motto-wall/internal/apperror"
	"github.com/sakif/motto-wall/internal/model"
	"github.com/sakif/motto-wall/internal/repository"
)

// newTestDB opens a fresh in-memory database that is closed when the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestMotto(t *testing.T, db *DB, nickname, text string) *model.Motto {
	t.Helper()
	m := &model.Motto{Nickname: nickname, Text: text}
	if err := db.Create(context.Background(), m); err != nil {
		t.Fatalf("failed to create test motto: %v", err)
	}
	return m
}

// =========================================================================
// CREATE
// =========================================================================

func TestCreate(t *testing.T) {
	db := newTestDB(t)

	m := &model.Motto{Nickname: "anonymous", Text: "Today my brain is confetti."}
	if err := db.Create(context.Background(), m); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if m.ID == "" {
		t.Error("Create() did not set ID")
	}
	if m.Number != 1 {
		t.Errorf("Create() Number = %d, want 1 on an empty table", m.Number)
	}
	if m.CreatedAt.IsZero() {
		t.Error("Create() did not set CreatedAt")
	}
}

func TestCreate_NumbersStrictlyIncrease(t *testing.T) {
	db := newTestDB(t)

	var prev int64
	for i := 0; i < 10; i++ {
		m := createTestMotto(t, db, "anonymous", "focus comes in waves")
		if m.Number <= prev {
			t.Fatalf("insert %d: Number = %d, want > %d", i, m.Number, prev)
		}
		prev = m.Number
	}
}

func TestCreate_NumberIsNeverReused(t *testing.T) {
	db := newTestDB(t)

	createTestMotto(t, db, "a", "one")
	last := createTestMotto(t, db, "b", "two")

	// Removing the highest row must not free its number.
	if _, err := db.conn.Exec(`DELETE FROM mottos WHERE number = ?`, last.Number); err != nil {
		t.Fatalf("delete: %v", err)
	}

	next := createTestMotto(t, db, "c", "three")
	if next.Number <= last.Number {
		t.Errorf("Number after delete = %d, want > %d", next.Number, last.Number)
	}
}

func TestCreate_ConcurrentInsertsGetDistinctNumbers(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "mottos.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	const n = 20
	numbers := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := &model.Motto{Nickname: "anonymous", Text: "parallel"}
			if err := db.Create(context.Background(), m); err != nil {
				t.Errorf("Create() error = %v", err)
				return
			}
			numbers <- m.Number
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[int64]bool)
	for num := range numbers {
		if seen[num] {
			t.Fatalf("number %d assigned twice", num)
		}
		seen[num] = true
	}
	if len(seen) != n {
		t.Errorf("got %d distinct numbers, want %d", len(seen), n)
	}
}

func TestCreate_TimezoneRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tz := "Europe/Berlin"
	withTZ := &model.Motto{Nickname: "sam", Text: "lists save me", Timezone: &tz}
	if err := db.Create(ctx, withTZ); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	withoutTZ := createTestMotto(t, db, "anonymous", "timers too")

	got, err := db.GetByNumber(ctx, withTZ.Number)
	if err != nil {
		t.Fatalf("GetByNumber() error = %v", err)
	}
	if got.Timezone == nil || *got.Timezone != tz {
		t.Errorf("Timezone = %v, want %q", got.Timezone, tz)
	}

	got, err = db.GetByNumber(ctx, withoutTZ.Number)
	if err != nil {
		t.Fatalf("GetByNumber() error = %v", err)
	}
	if got.Timezone != nil {
		t.Errorf("Timezone = %q, want nil", *got.Timezone)
	}
}

// =========================================================================
// GET BY NUMBER
// =========================================================================

func TestGetByNumber(t *testing.T) {
	db := newTestDB(t)
	created := createTestMotto(t, db, "sam", "Today my brain is confetti.")

	found, err := db.GetByNumber(context.Background(), created.Number)
	if err != nil {
		t.Fatalf("GetByNumber() error = %v", err)
	}

	if found.ID != created.ID {
		t.Errorf("ID = %q, want %q", found.ID, created.ID)
	}
	if found.Nickname != "sam" {
		t.Errorf("Nickname = %q, want %q", found.Nickname, "sam")
	}
	if found.Text != "Today my brain is confetti." {
		t.Errorf("Text = %q", found.Text)
	}
	if d := found.CreatedAt.Sub(created.CreatedAt); d > time.Second || d < -time.Second {
		t.Errorf("CreatedAt = %v, want about %v", found.CreatedAt, created.CreatedAt)
	}
}

func TestGetByNumber_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByNumber(context.Background(), 42)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("GetByNumber() error = %v, want ErrNotFound", err)
	}
	if err.Error() != "motto not found with number 42" {
		t.Errorf("message = %q", err.Error())
	}
}

// =========================================================================
// LIST / COUNT
// =========================================================================

func TestList_Empty(t *testing.T) {
	db := newTestDB(t)

	mottos, err := db.List(context.Background(), repository.ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(mottos) != 0 {
		t.Errorf("List() returned %d mottos, want 0", len(mottos))
	}
}

func TestList_OrderedByNumber(t *testing.T) {
	db := newTestDB(t)
	createTestMotto(t, db, "a", "first")
	createTestMotto(t, db, "b", "second")
	createTestMotto(t, db, "c", "third")

	mottos, err := db.List(context.Background(), repository.ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(mottos) != 3 {
		t.Fatalf("List() returned %d mottos, want 3", len(mottos))
	}
	for i, want := range []string{"first", "second", "third"} {
		if mottos[i].Text != want {
			t.Errorf("mottos[%d].Text = %q, want %q", i, mottos[i].Text, want)
		}
	}
}

func TestList_Pagination(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 5; i++ {
		createTestMotto(t, db, "anonymous", "motto")
	}

	page1, err := db.List(context.Background(), repository.ListOptions{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatalf("List() page 1 error = %v", err)
	}
	page3, err := db.List(context.Background(), repository.ListOptions{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List() page 3 error = %v", err)
	}

	if len(page1) != 2 || len(page3) != 1 {
		t.Fatalf("page sizes = %d, %d; want 2, 1", len(page1), len(page3))
	}
	if page1[0].Number >= page3[0].Number {
		t.Error("later pages must hold higher numbers")
	}
}

func TestList_DefaultLimit(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 25; i++ {
		createTestMotto(t, db, "anonymous", "motto")
	}

	mottos, err := db.List(context.Background(), repository.ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(mottos) != repository.DefaultPageSize {
		t.Errorf("List() default returned %d items, want %d", len(mottos), repository.DefaultPageSize)
	}
}

func TestCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	n, err := db.Count(ctx)
	if err != nil || n != 0 {
		t.Fatalf("Count() = %d, %v; want 0, nil", n, err)
	}

	createTestMotto(t, db, "a", "one")
	createTestMotto(t, db, "b", "two")

	n, err = db.Count(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Count() = %d, %v; want 2, nil", n, err)
	}
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
}
