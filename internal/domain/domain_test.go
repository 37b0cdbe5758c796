package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListFilter_Normalize(t *testing.T) {
	tests := []struct {
		name       string
		in         ListFilter
		wantLimit  int
		wantOffset int
	}{
		{"zero limit gets default", ListFilter{}, DefaultLimit, 0},
		{"limit clamped", ListFilter{Limit: 10_000}, MaxLimit, 0},
		{"negative offset", ListFilter{Limit: 5, Offset: -3}, 5, 0},
		{"kept", ListFilter{Limit: 20, Offset: 40}, 20, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			assert.Equal(t, tt.wantLimit, got.Limit)
			assert.Equal(t, tt.wantOffset, got.Offset)
		})
	}
}

func TestHookRegistry_RunsAllHooks(t *testing.T) {
	r := NewHookRegistry[int]()
	var seen []int
	r.OnAfterCommit(func(ctx context.Context, v int) error {
		seen = append(seen, v)
		return nil
	})
	r.On(AfterDelete, func(ctx context.Context, v int) error {
		return errors.New("cache down")
	})

	assert.NoError(t, r.Run(context.Background(), AfterCreate, 1))
	err := r.Run(context.Background(), AfterDelete, 2)
	assert.EqualError(t, err, "cache down")
	assert.Equal(t, []int{1, 2}, seen)
}
