package history

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMock(t *testing.T) (*EventSQLite, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewEventSQLite(db), mock
}

func TestEventSQLite_Append(t *testing.T) {
	t.Run("full event", func(t *testing.T) {
		repo, mock := newMock(t)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO client_events")).
			WithArgs("evt-1", "2026-08-24 10:00:00", "COMMAND", "fan mode set", `{"zone":"SYS1_0"}`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Append(context.Background(), Event{
			ID:          "evt-1",
			OccurredAt:  time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
			Type:        "command", // stored uppercased
			Description: "fan mode set",
			Metadata:    map[string]any{"zone": "SYS1_0"},
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("generates id and timestamp, nil metadata", func(t *testing.T) {
		repo, mock := newMock(t)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO client_events")).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "ERROR", "pump cycle failed", nil).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Append(context.Background(), Event{
			Type:        TypeError,
			Description: "pump cycle failed",
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("insert failure propagates", func(t *testing.T) {
		repo, mock := newMock(t)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO client_events")).
			WillReturnError(errors.New("disk full"))

		if err := repo.Append(context.Background(), Event{Type: TypeTelemetry, Description: "x"}); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestEventSQLite_List(t *testing.T) {
	cols := []string{"id", "occurred_at", "type", "message", "meta"}
	at := time.Date(2026, 8, 24, 9, 30, 0, 0, time.UTC)

	t.Run("no filter", func(t *testing.T) {
		repo, mock := newMock(t)

		rows := sqlmock.NewRows(cols).
			AddRow("e1", at, TypeTelemetry, "zone update", `{"zone":"SYS1_0"}`).
			AddRow("e2", at.Add(time.Minute), TypeCommand, "setpoints changed", nil)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, occurred_at, type, message, meta FROM client_events ORDER BY occurred_at ASC")).
			WillReturnRows(rows)

		events, err := repo.List(context.Background(), Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if events[0].ID != "e1" || events[0].Type != TypeTelemetry {
			t.Fatalf("unexpected first event: %+v", events[0])
		}
		meta, ok := events[0].Metadata.(map[string]any)
		if !ok || meta["zone"] != "SYS1_0" {
			t.Fatalf("metadata not decoded: %+v", events[0].Metadata)
		}
		if events[1].Metadata != nil {
			t.Fatalf("nil meta must stay nil, got %+v", events[1].Metadata)
		}
	})

	t.Run("type and range filter", func(t *testing.T) {
		repo, mock := newMock(t)

		from := at.Add(-time.Hour)
		to := at.Add(time.Hour)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, occurred_at, type, message, meta FROM client_events WHERE occurred_at >= ? AND occurred_at <= ? AND type = ? ORDER BY occurred_at ASC")).
			WithArgs(from, to, "COMMAND").
			WillReturnRows(sqlmock.NewRows(cols))

		events, err := repo.List(context.Background(), Filter{From: from, To: to, Type: "command"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(events) != 0 {
			t.Fatalf("expected empty result, got %d", len(events))
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("query failure propagates", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectQuery("SELECT").WillReturnError(errors.New("locked"))
		if _, err := repo.List(context.Background(), Filter{}); err == nil {
			t.Fatalf("expected error")
		}
	})
}
