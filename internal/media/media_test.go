package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zailonsoft/carbot/internal/models"
)

var fixed = time.UnixMilli(1700000000123)

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"image/jpeg":               "jpg",
		"image/png":                "png",
		"application/pdf":          "pdf",
		"image/jpeg; charset=x":    "jpg",
		"application/x-made-up-zz": "x-made-up-zz",
		"":                         "bin",
	}
	for in, want := range tests {
		if got := Extension(in); got != want {
			t.Errorf("Extension(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileName(t *testing.T) {
	got := FileName("5511999999999@s.whatsapp.net", "rg", "image/jpeg", fixed)
	assert.Equal(t, "5511999999999@s.whatsapp.net_rg_1700000000123.jpg", got)

	got = FileName("../../etc", "trade/photo", "image/png", fixed)
	assert.NotContains(t, got, "/")
}

func TestFSStoreSaveLoad(t *testing.T) {
	s, err := NewFSStore(filepath.Join(t.TempDir(), "documents"))
	require.NoError(t, err)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	ref, err := s.Save(ctx, "c1", "income", "application/pdf", []byte("%PDF-1.4 test"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref.Location, "c1_income_1700000000123.pdf"))
	assert.Equal(t, "application/pdf", ref.Mimetype)
	assert.Equal(t, "income", ref.Tag)

	info, err := os.Stat(ref.Location)
	require.NoError(t, err)
	assert.Equal(t, int64(len("%PDF-1.4 test")), info.Size())

	data, err := s.Load(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 test"), data)

	_, err = s.Load(ctx, models.MediaRef{Location: "/etc/passwd"})
	assert.Error(t, err)
}

func TestFSStoreRejectsEmpty(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	_, err = s.Save(context.Background(), "c1", "rg", "image/jpeg", nil)
	assert.True(t, errors.Is(err, ErrEmpty))
}

func TestFSStoreDetectsUndeclaredType(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ref, err := s.Save(context.Background(), "c1", "rg", "", []byte("%PDF-1.7\n"))
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", ref.Mimetype)
	assert.True(t, strings.HasSuffix(ref.Location, ".pdf"))
}

type mockS3Client struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	body, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = body
	m.types[*input.Key] = *input.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3StoreSaveLoad(t *testing.T) {
	mock := newMockS3()
	s := NewS3Store(mock, "carbot-media", "/documents/")
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	ref, err := s.Save(ctx, "c1", "residence", "image/png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "documents/c1_residence_1700000000123.png", ref.Location)
	assert.Equal(t, "image/png", mock.types[ref.Location])

	data, err := s.Load(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	_, err = s.Load(ctx, models.MediaRef{Location: "missing"})
	assert.Error(t, err)
}

func TestS3StoreErrors(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("access denied")
	s := NewS3Store(mock, "b", "")

	_, err := s.Save(context.Background(), "c1", "rg", "image/jpeg", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")

	_, err = s.Save(context.Background(), "c1", "rg", "image/jpeg", nil)
	assert.ErrorIs(t, err, ErrEmpty)
}
