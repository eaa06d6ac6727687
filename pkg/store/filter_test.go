package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
)

func TestBuildFilter(t *testing.T) {
	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		filter   models.Filter
		next     int
		wantSQL  string
		wantArgs []any
	}{
		{
			name:   "empty",
			filter: models.Filter{},
			next:   2,
		},
		{
			name:     "org only",
			filter:   models.Filter{Org: "Acme"},
			next:     2,
			wantSQL:  " AND org_name = $2",
			wantArgs: []any{"Acme"},
		},
		{
			name:     "all fields",
			filter:   models.Filter{Org: "Acme", Project: "Billing", Since: &since},
			next:     2,
			wantSQL:  " AND org_name = $2 AND project_name = $3 AND call_date >= $4",
			wantArgs: []any{"Acme", "Billing", since},
		},
		{
			name:     "since numbered from next",
			filter:   models.Filter{Since: &since},
			next:     5,
			wantSQL:  " AND call_date >= $5",
			wantArgs: []any{since},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := buildFilter(tt.filter, tt.next)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestWrapErr(t *testing.T) {
	err := wrapErr("query", &pgconn.ConnectError{})
	assert.ErrorIs(t, err, types.ErrDependencyUnavailable)

	err = wrapErr("query", fmt.Errorf("timeout: %w", errTimeout{}))
	assert.ErrorIs(t, err, types.ErrDependencyUnavailable)

	plain := errors.New("syntax error")
	err = wrapErr("query", plain)
	assert.NotErrorIs(t, err, types.ErrDependencyUnavailable)
	assert.ErrorIs(t, err, plain)
	assert.Contains(t, err.Error(), "failed to query")
}

type errTimeout struct{}

func (errTimeout) Error() string   { return "i/o timeout" }
func (errTimeout) Timeout() bool   { return true }
func (errTimeout) Temporary() bool { return true }

func TestSanitizeUTF8(t *testing.T) {
	assert.Equal(t, "hello", sanitizeUTF8("hello"))
	assert.Equal(t, "héllo", sanitizeUTF8("h\xffé\xfello"))
}
