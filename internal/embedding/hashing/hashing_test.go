package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDeterministic(t *testing.T) {
	e := New(128)
	first, err := e.EncodeBatch([]string{"paciente con fiebre alta", "dolor de cabeza"})
	require.NoError(t, err)
	second, err := e.EncodeBatch([]string{"paciente con fiebre alta", "dolor de cabeza"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEncodeDimension(t *testing.T) {
	e := New(64)
	assert.Equal(t, 64, e.Dimension())
	vecs, err := e.EncodeBatch([]string{"some text"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Len(t, vecs[0], 64)

	assert.Equal(t, DefaultDimension, New(0).Dimension())
	assert.Equal(t, DefaultDimension, New(-5).Dimension())
}

func TestEncodeEmptyAndStopwordOnlyTextIsZero(t *testing.T) {
	e := New(32)
	vecs, err := e.EncodeBatch([]string{"", "the and of to"})
	require.NoError(t, err)
	for _, v := range vecs {
		for _, x := range v {
			assert.Zero(t, x)
		}
	}
}

func TestEncodeDifferentTextsDiffer(t *testing.T) {
	e := New(DefaultDimension)
	vecs, err := e.EncodeBatch([]string{"fiebre y tos", "fractura de tobillo"})
	require.NoError(t, err)
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestEncodeCaseInsensitive(t *testing.T) {
	e := New(DefaultDimension)
	vecs, err := e.EncodeBatch([]string{"Dolor Abdominal", "dolor abdominal"})
	require.NoError(t, err)
	assert.Equal(t, vecs[0], vecs[1])
}
