package file

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadBatch_PartialFailureIsReported(t *testing.T) {
	objects := NewMemoryObjects()
	objects.FailSuffix = map[string]error{".tif": errors.New("unsupported")}
	svc := New(objects, nil, nil)

	m := svc.UploadBatch(context.Background(), "/labs/123/", []Upload{
		{Name: "a.jpg", ContentType: "image/jpeg", Data: []byte("a")},
		{Name: "b.tif", Data: []byte("b")},
		{Name: "empty.png"},
		{Name: "c.PNG", Data: []byte("c")},
	})

	require.Len(t, m, 4)
	assert.Equal(t, []string{"a.jpg", "b.tif", "empty.png", "c.PNG"}, []string{m[0].Name, m[1].Name, m[2].Name, m[3].Name})

	keys := m.Keys()
	require.Len(t, keys, 2)
	for _, k := range keys {
		assert.True(t, strings.HasPrefix(k, "labs/123/"), k)
		_, ok := objects.Get(k)
		assert.True(t, ok)
	}
	assert.True(t, strings.HasSuffix(keys[1], ".png"))

	failed := m.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, "b.tif", failed[0].Name)
	assert.ErrorIs(t, failed[1].Err, ErrEmptyFile)
	assert.False(t, m.Complete())
}

func TestUploadBatch_NoObjectStore(t *testing.T) {
	svc := New(nil, nil, nil)
	m := svc.UploadBatch(context.Background(), "rx", []Upload{{Name: "x.jpg", Data: []byte("x")}})
	require.Len(t, m.Failed(), 1)
	assert.ErrorIs(t, m[0].Err, ErrObjectStore)
}

func TestFileResultJSON(t *testing.T) {
	b, err := json.Marshal(Manifest{
		{Name: "a.jpg", Key: "k/a.jpg"},
		{Name: "b.jpg", Err: errors.New("boom")},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"a.jpg","key":"k/a.jpg"},{"name":"b.jpg","error":"boom"}]`, string(b))
}

func TestDownloadURL(t *testing.T) {
	objects := NewMemoryObjects()
	svc := New(objects, nil, nil)
	m := svc.UploadBatch(context.Background(), "p", []Upload{{Name: "a.jpg", Data: []byte("a")}})

	url, err := svc.DownloadURL(context.Background(), m.Keys()[0])
	require.NoError(t, err)
	assert.Equal(t, "memory://"+m.Keys()[0], url)

	_, err = svc.DownloadURL(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
