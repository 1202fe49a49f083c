package engine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"ticketcore/pkg/domain"
)

func TestRebindLeavesSQLiteQueriesAlone(t *testing.T) {
	q := `INSERT INTO changelog (field_id) VALUES (?)`
	if got := DialectSQLite.rebind(q); got != q {
		t.Fatalf("sqlite rebind changed query: %s", got)
	}
}

func TestRebindNumbersPostgresPlaceholders(t *testing.T) {
	got := DialectPostgres.rebind(`SELECT id FROM entities WHERE type_id = ? AND acl_id = ?`)
	want := `SELECT id FROM entities WHERE type_id = $1 AND acl_id = $2`
	if got != want {
		t.Fatalf("rebind = %s, want %s", got, want)
	}
}

func TestMicrosRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 589000, time.UTC)
	if got := fromMicros(toMicros(ts)); !got.Equal(ts) {
		t.Fatalf("round trip = %v, want %v", got, ts)
	}
	if toMicros(time.Time{}) != 0 {
		t.Fatalf("zero time must persist as 0")
	}
	if !fromMicros(0).IsZero() {
		t.Fatalf("0 must scan as zero time")
	}
}

func TestClassifyWriteMapsConstraintErrors(t *testing.T) {
	err := classifyWrite("insert entity", fmt.Errorf("UNIQUE constraint failed: entities.id"))
	var cv domain.ConstraintViolation
	if !errors.As(err, &cv) {
		t.Fatalf("expected ConstraintViolation, got %v", err)
	}
	if cv.Op != "insert entity" {
		t.Fatalf("unexpected op %s", cv.Op)
	}

	err = classifyWrite("insert entity", fmt.Errorf("duplicate key value (SQLSTATE 23505)"))
	if !errors.As(err, &cv) {
		t.Fatalf("expected ConstraintViolation for sqlstate 23, got %v", err)
	}

	plain := classifyWrite("read row", fmt.Errorf("connection reset"))
	if errors.As(plain, &cv) {
		t.Fatalf("plain error misclassified: %v", plain)
	}
	if plain.Error() != "read row: connection reset" {
		t.Fatalf("unexpected wrap: %v", plain)
	}
	if classifyWrite("noop", nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
}
