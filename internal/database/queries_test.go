package database

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/fossabot/gfw-data-api/internal/pipeline"
	"github.com/fossabot/gfw-data-api/internal/status"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "pq unique violation", err: &pq.Error{Code: "23505"}, want: ErrAlreadyExists},
		{name: "pgx unique violation", err: &pgconn.PgError{Code: "23505"}, want: ErrAlreadyExists},
		{name: "wrapped pgx foreign key", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503"}), want: ErrNotFound},
		{name: "pq foreign key", err: &pq.Error{Code: "23503"}, want: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("mapError() = %v, want %v", got, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("mapError() dropped the driver error")
			}
		})
	}

	other := errors.New("connection refused")
	if got := mapError(other); got != other {
		t.Errorf("mapError() = %v, want the original error", got)
	}
	if mapError(nil) != nil {
		t.Errorf("mapError(nil) != nil")
	}
}

func TestSentinelsMatchStatusPackage(t *testing.T) {
	if !errors.Is(fmt.Errorf("x: %w", ErrNotFound), status.ErrNotFound) {
		t.Errorf("ErrNotFound does not match status.ErrNotFound")
	}
}

type fakeRow []any

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r) {
		return fmt.Errorf("scan: %d columns, %d destinations", len(r), len(dest))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r[i].(string)
		case *bool:
			*p = r[i].(bool)
		case *[]byte:
			if r[i] != nil {
				*p = []byte(r[i].(string))
			}
		case *time.Time:
			*p = r[i].(time.Time)
		default:
			return fmt.Errorf("unsupported destination %T", d)
		}
	}
	return nil
}

func TestScanTask(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	row := fakeRow{
		"job-1", "3b5f3c1e-1d2a-4c1b-9a52-5c1e8e2f7a10", "success",
		`[{"date_time":"2024-01-01T00:00:00Z","status":"success","message":"Successfully completed job load_data_0"}]`,
		ts, ts,
	}
	task, err := scanTask(row)
	if err != nil {
		t.Fatalf("scanTask() error = %v", err)
	}
	if task.Status != pipeline.StatusSuccess {
		t.Errorf("Status = %q, want success", task.Status)
	}
	if len(task.ChangeLog) != 1 || task.ChangeLog[0].Message != "Successfully completed job load_data_0" {
		t.Errorf("ChangeLog = %+v", task.ChangeLog)
	}
}

func TestScanVersionAndAsset(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	v, err := scanVersion(fakeRow{"ds", "v1", "table", `["s3://b/a.csv"]`, "pending", `[]`, ts, ts})
	if err != nil {
		t.Fatalf("scanVersion() error = %v", err)
	}
	if len(v.SourceURI) != 1 || v.SourceURI[0] != "s3://b/a.csv" {
		t.Errorf("SourceURI = %v", v.SourceURI)
	}

	a, err := scanAsset(fakeRow{
		"3b5f3c1e-1d2a-4c1b-9a52-5c1e8e2f7a10", "ds", "v1", "Database table", "/ds/v1/features",
		true, true, "failed", `{"delimiter":","}`, `not json`, ts, ts,
	})
	if err == nil {
		t.Fatalf("scanAsset() accepted a malformed change log: %+v", a)
	}
}

func TestMarshalColumn(t *testing.T) {
	var none []status.ChangeLog
	b, err := marshalColumn(none)
	if err != nil {
		t.Fatalf("marshalColumn() error = %v", err)
	}
	if string(b) != "[]" {
		t.Errorf("marshalColumn(nil) = %s, want []", b)
	}
}
