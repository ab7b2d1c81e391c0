package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersionMarker(t *testing.T) {
	tests := []struct {
		in      string
		want    VersionMarker
		wantErr bool
	}{
		{"", VersionMarker{}, false},
		{"unpublished", Unpublished(), false},
		{"deleted", Deleted(), false},
		{"0", Unpublished(), false},
		{"1", Numbered(1), false},
		{"12", Numbered(12), false},
		{"-1", VersionMarker{}, true},
		{"v2", VersionMarker{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVersionMarker(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVersionMarker_Text(t *testing.T) {
	assert.Nil(t, VersionMarker{}.Text())

	for _, m := range []VersionMarker{Unpublished(), Numbered(3), Deleted()} {
		text := m.Text()
		require.NotNil(t, text)
		parsed, err := ParseVersionMarker(*text)
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
}

func TestVersionMarker_JSON(t *testing.T) {
	type wrapper struct {
		Before VersionMarker `json:"before"`
		After  VersionMarker `json:"after"`
	}

	data, err := json.Marshal(wrapper{After: Numbered(2)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"before":null,"after":"2"}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"before":"unpublished","after":4}`), &w))
	assert.Equal(t, Unpublished(), w.Before)
	assert.Equal(t, Numbered(4), w.After)
}

func TestMarkerForVersion(t *testing.T) {
	assert.Equal(t, Unpublished(), MarkerForVersion(0))
	assert.Equal(t, Numbered(5), MarkerForVersion(5))
	assert.Equal(t, "5", MarkerForVersion(5).String())
}
