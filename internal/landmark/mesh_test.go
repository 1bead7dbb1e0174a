package landmark

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/dudu/facemesh/internal/inference"
)

type fakeModel struct {
	outputs []inference.Tensor
	err     error
	input   inference.Tensor
}

func (m *fakeModel) Run(input inference.Tensor) ([]inference.Tensor, error) {
	m.input = input
	return m.outputs, m.err
}

func (m *fakeModel) Close() error { return nil }

func TestMesh_NormalizesCoordinates(t *testing.T) {
	model := &fakeModel{outputs: []inference.Tensor{
		{Shape: []int64{1, 1, 1, 1}, Data: []float32{0.97}},
		{Shape: []int64{1, 6}, Data: []float32{64, 32, 16, 128, 0, -8}},
	}}
	cfg := DefaultMeshConfig(128, 64)
	cfg.FlagLogits = false

	mesh, err := NewMesh(model, cfg)
	require.NoError(t, err)

	crop := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 64, 128, gocv.MatTypeCV32FC3)
	defer crop.Close()

	lm, err := mesh.Regress(crop)
	require.NoError(t, err)

	assert.Equal(t, float32(0.97), lm.Confidence)
	require.Len(t, lm.Points, 2)
	assert.InDelta(t, 0.5, lm.Points[0].X, 1e-6)
	assert.InDelta(t, 0.5, lm.Points[0].Y, 1e-6)
	assert.InDelta(t, 0.125, lm.Points[0].Z, 1e-6)
	assert.InDelta(t, 1, lm.Points[1].X, 1e-6)
	assert.InDelta(t, -0.0625, lm.Points[1].Z, 1e-6)

	assert.Equal(t, []int64{1, 3, 64, 128}, model.input.Shape)
	assert.InDelta(t, 1, model.input.Data[0], 1e-6)
}

func TestMesh_DoesNotMutateCrop(t *testing.T) {
	model := &fakeModel{outputs: []inference.Tensor{
		{Shape: []int64{1}, Data: []float32{3}},
		{Shape: []int64{3}, Data: []float32{1, 2, 3}},
	}}
	mesh, err := NewMesh(model, DefaultMeshConfig(8, 8))
	require.NoError(t, err)

	crop := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(200, 100, 50, 0), 8, 8, gocv.MatTypeCV32FC3)
	defer crop.Close()
	before := crop.Clone()
	defer before.Close()

	lm, err := mesh.Regress(crop)
	require.NoError(t, err)
	assert.InDelta(t, inference.Sigmoid(3), lm.Confidence, 1e-6)

	assert.Equal(t, before.ToBytes(), crop.ToBytes())
}

func TestMesh_Errors(t *testing.T) {
	crop := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV32FC3)
	defer crop.Close()

	boom := errors.New("shape mismatch")
	mesh, err := NewMesh(&fakeModel{err: boom}, DefaultMeshConfig(8, 8))
	require.NoError(t, err)
	_, err = mesh.Regress(crop)
	assert.ErrorIs(t, err, boom)

	mesh, err = NewMesh(&fakeModel{outputs: []inference.Tensor{{Shape: []int64{3}, Data: []float32{1, 2, 3}}}}, DefaultMeshConfig(8, 8))
	require.NoError(t, err)
	_, err = mesh.Regress(crop)
	assert.ErrorContains(t, err, "unexpected mesh outputs")

	_, err = NewMesh(&fakeModel{}, DefaultMeshConfig(0, 8))
	assert.Error(t, err)
}
