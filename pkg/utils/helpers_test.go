package utils

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundRatio64(t *testing.T) {
	tests := []struct {
		name     string
		num, den int64
		places   int
		want     float64
	}{
		{"exact", 1, 10, 4, 0.1},
		{"half away from zero", 1, 8, 2, 0.13},
		{"round down", 1, 3, 4, 0.3333},
		{"round up", 2, 3, 4, 0.6667},
		{"half at fourth place", 12345, 100000, 4, 0.1235},
		{"zero denominator", 5, 0, 4, 0},
		{"zero numerator", 0, 7, 4, 0},
		{"one place", 45, 2, 1, 22.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoundRatio64(tt.num, tt.den, tt.places))
		})
	}
}

func TestRoundFloat(t *testing.T) {
	assert.Equal(t, 0.1235, RoundFloat(0.12345, 4))
	assert.Equal(t, 2.5, RoundFloat(2.45, 1))
	assert.Equal(t, -2.5, RoundFloat(-2.45, 1))
	assert.Equal(t, 3.0, RoundFloat(3, 1))
	assert.Equal(t, 0.0, RoundFloat(0, 4))
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"12", 12, false},
		{" 7 ", 7, false},
		{"-3", -3, false},
		{"12.0", 12, false},
		{"12.5", 0, true},
		{"abc", 0, true},
		{"NaN", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseInt(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseFloat(t *testing.T) {
	f, err := ParseFloat("45919049.0")
	require.NoError(t, err)
	assert.Equal(t, 45919049.0, f)

	_, err = ParseFloat("Inf")
	assert.Error(t, err)
	_, err = ParseFloat("x")
	assert.Error(t, err)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "deeper", "out.txt")

	err := WriteFileAtomic(target, func(w *bufio.Writer) error {
		_, err := w.WriteString("hello\n")
		return err
	})
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	// a failing writer leaves neither the target nor a temporary file
	failed := filepath.Join(dir, "failed.txt")
	err = WriteFileAtomic(failed, func(w *bufio.Writer) error {
		return errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
	_, statErr := os.Stat(failed)
	assert.True(t, os.IsNotExist(statErr))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1) // only "nested"
}
