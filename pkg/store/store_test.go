package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() *SpatialImage {
	return &SpatialImage{
		Channels:         2,
		Rows:             2,
		Cols:             3,
		ScaleX:           64,
		ScaleY:           64,
		CoordinateSystem: "global",
		Data:             []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "embedding_resnet50", ImageKey("resnet50"))
	assert.Equal(t, "embedding_patches", PatchesKey)
}

func TestCodecRoundTrip(t *testing.T) {
	img := testImage()
	encoded, err := MarshalSpatialImage(img)
	require.NoError(t, err)

	decoded, err := UnmarshalSpatialImage(encoded)
	require.NoError(t, err)
	assert.Equal(t, img, decoded)
}

func TestCodecRejectsShapeMismatch(t *testing.T) {
	img := testImage()
	img.Data = img.Data[:5]
	_, err := MarshalSpatialImage(img)
	assert.Error(t, err)
}

func TestCodecRejectsCorruptInput(t *testing.T) {
	_, err := UnmarshalSpatialImage([]byte("not a spatial image"))
	assert.Error(t, err)

	encoded, err := MarshalSpatialImage(testImage())
	require.NoError(t, err)
	_, err = UnmarshalSpatialImage(encoded[:len(encoded)-8])
	assert.Error(t, err)
}

func TestMemoryCommitAndRead(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	defer st.Close()

	img := testImage()
	shapes := []byte(`{"type":"FeatureCollection","features":[]}`)
	require.NoError(t, st.Commit(ctx, ImageKey("dummy"), img, PatchesKey, shapes))

	got, err := st.Image(ctx, ImageKey("dummy"))
	require.NoError(t, err)
	assert.Equal(t, img, got)

	gotShapes, err := st.Shapes(ctx, PatchesKey)
	require.NoError(t, err)
	assert.Equal(t, shapes, gotShapes)
}

func TestMemoryMissingKeys(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	defer st.Close()

	_, err := st.Image(ctx, ImageKey("dummy"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.Shapes(ctx, PatchesKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryFailedCommitWritesNothing(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	defer st.Close()

	broken := testImage()
	broken.Data = broken.Data[:3]
	require.Error(t, st.Commit(ctx, ImageKey("dummy"), broken, PatchesKey, []byte("{}")))

	_, err := st.Image(ctx, ImageKey("dummy"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.Shapes(ctx, PatchesKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerCommitAndRead(t *testing.T) {
	ctx := context.Background()
	st, err := OpenBadger("", true)
	require.NoError(t, err)
	defer st.Close()

	img := testImage()
	shapes := []byte(`{"type":"FeatureCollection","features":[]}`)
	require.NoError(t, st.Commit(ctx, ImageKey("stats"), img, PatchesKey, shapes))

	got, err := st.Image(ctx, ImageKey("stats"))
	require.NoError(t, err)
	assert.Equal(t, img, got)

	gotShapes, err := st.Shapes(ctx, PatchesKey)
	require.NoError(t, err)
	assert.Equal(t, shapes, gotShapes)
}

func TestBadgerFailedCommitWritesNothing(t *testing.T) {
	ctx := context.Background()
	st, err := OpenBadger("", true)
	require.NoError(t, err)
	defer st.Close()

	broken := testImage()
	broken.Data = nil
	require.Error(t, st.Commit(ctx, ImageKey("stats"), broken, PatchesKey, []byte("{}")))

	_, err = st.Image(ctx, ImageKey("stats"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.Shapes(ctx, PatchesKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerOnDisk(t *testing.T) {
	ctx := context.Background()
	st, err := OpenBadger(t.TempDir(), false)
	require.NoError(t, err)

	img := testImage()
	require.NoError(t, st.Commit(ctx, ImageKey("dummy"), img, PatchesKey, []byte("{}")))
	require.NoError(t, st.Close())
}
