package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/AnshRaj112/voiceconnect-backend/internal/services"
	"github.com/lib/pq"
)

type fakeResult struct{ n int64 }

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.n, nil }

func TestMapErr(t *testing.T) {
	plain := errors.New("connection reset")
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", sql.ErrNoRows, services.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", sql.ErrNoRows), services.ErrNotFound},
		{"foreign key", &pq.Error{Code: pqForeignKeyViolation}, services.ErrNotFound},
		{"unique", &pq.Error{Code: pqUniqueViolation}, services.ErrConflict},
		{"other", plain, plain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapErr(tt.in)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("mapErr = %v, want nil", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Fatalf("mapErr = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequireRow(t *testing.T) {
	if err := requireRow(fakeResult{n: 1}, nil); err != nil {
		t.Fatalf("one row: %v", err)
	}
	if err := requireRow(fakeResult{n: 0}, nil); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("zero rows: %v", err)
	}
	if err := requireRow(nil, &pq.Error{Code: pqUniqueViolation}); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("driver error: %v", err)
	}
}
