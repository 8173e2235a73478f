package domain

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     PageRequest
		wantErr bool
	}{
		{"FirstPage", PageRequest{Page: 0, Size: 20}, false},
		{"LaterPage", PageRequest{Page: 7, Size: 5}, false},
		{"NegativePage", PageRequest{Page: -1, Size: 20}, true},
		{"ZeroSize", PageRequest{Page: 0, Size: 0}, true},
		{"OffsetOverflow", PageRequest{Page: math.MaxInt64, Size: 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidInput))
				return
			}
			assert.NoError(t, err)
		})
	}

	assert.Equal(t, int64(35), PageRequest{Page: 7, Size: 5}.Offset())
}

func TestParseSort(t *testing.T) {
	orders, err := ParseSort([]string{"name", "amount,desc", " id , ASC ", ""})
	require.NoError(t, err)
	assert.Equal(t, []SortOrder{
		{Field: "name"},
		{Field: "amount", Descending: true},
		{Field: "id"},
	}, orders)

	for _, bad := range []string{"name,sideways", "a,asc,desc", ",desc"} {
		_, err := ParseSort([]string{bad})
		assert.True(t, errors.Is(err, ErrInvalidInput), "expected %q to be rejected", bad)
	}
}

func TestValidateSort(t *testing.T) {
	req := PageRequest{Page: 0, Size: 10, Sort: []SortOrder{{Field: "name"}}}
	assert.NoError(t, req.ValidateSort(SellerSortFields...))

	req.Sort = append(req.Sort, SortOrder{Field: "password"})
	err := req.ValidateSort(SellerSortFields...)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestNewPage(t *testing.T) {
	page := NewPage([]string{"a", "b"}, PageRequest{Page: 1, Size: 2}, 5)
	assert.Equal(t, int64(3), page.TotalPages)
	assert.Equal(t, int64(5), page.TotalElements)
	assert.Equal(t, int64(1), page.Page)

	empty := NewPage[string](nil, PageRequest{Page: 0, Size: 10}, 0)
	assert.NotNil(t, empty.Content)
	assert.Equal(t, int64(0), empty.TotalPages)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: bad", ErrInvalidInput), "INVALID_INPUT"},
		{fmt.Errorf("%w: seller", ErrNotFound), "NOT_FOUND"},
		{fmt.Errorf("%w: busy", ErrConflict), "CONFLICT"},
		{NewDependencyError("getSeller", errors.New("connection refused")), "DEPENDENCY_FAILURE"},
		{errors.New("boom"), "INTERNAL"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorCode(tt.err))
	}

	cause := errors.New("connection refused")
	err := NewDependencyError("getSeller", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "getSeller")
}
