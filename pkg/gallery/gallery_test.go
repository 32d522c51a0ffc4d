package gallery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrcard_backend/pkg/subscription"
)

func TestComputeSlots(t *testing.T) {
	s := ComputeSlots(5, 5)
	assert.True(t, s.HasReachedLimit)
	assert.Equal(t, int64(0), s.Remaining)

	s = ComputeSlots(5, 2)
	assert.False(t, s.HasReachedLimit)
	assert.Equal(t, int64(3), s.Remaining)

	s = ComputeSlots(5, 9)
	assert.Equal(t, int64(0), s.Remaining)
	assert.True(t, s.HasReachedLimit)

	s = ComputeSlots(subscription.Unlimited, 1000)
	assert.True(t, s.Unlimited)
	assert.False(t, s.HasReachedLimit)
}

func TestSplitBatchAtLimitRejectsAll(t *testing.T) {
	slots := ComputeSlots(5, 5)
	accepted, rejected, err := SplitBatch([]string{"a", "b", "c"}, slots, subscription.BasicPlan, KindImage)
	assert.Empty(t, accepted)
	assert.Equal(t, []string{"a", "b", "c"}, rejected)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLimitReached))
	assert.Contains(t, err.Error(), "basic plan allows 5 images")
}

func TestSplitBatchPartial(t *testing.T) {
	slots := ComputeSlots(5, 3)
	accepted, rejected, err := SplitBatch([]int{1, 2, 3}, slots, subscription.BasicPlan, KindImage)
	assert.Equal(t, []int{1, 2}, accepted)
	assert.Equal(t, []int{3}, rejected)
	assert.Error(t, err)
}

func TestSplitBatchUnlimited(t *testing.T) {
	items := make([]int, 500)
	slots := SlotsFor(subscription.PremiumPlan, KindImage, 10_000)
	accepted, rejected, err := SplitBatch(items, slots, subscription.PremiumPlan, KindImage)
	assert.NoError(t, err)
	assert.Len(t, accepted, 500)
	assert.Empty(t, rejected)
}

func TestSlotsForVideos(t *testing.T) {
	s := SlotsFor(subscription.BasicPlan, KindVideo, 1)
	assert.True(t, s.HasReachedLimit)
	assert.Equal(t, int64(1), s.Max)
}

var magic = map[string]string{
	".png":  "\x89PNG\r\n\x1a\n",
	".jpg":  "\xff\xd8\xff\xe0",
	".pdf":  "%PDF-1.7\n",
	".docx": "PK\x03\x04",
	".exe":  "MZ\x90\x00",
}

// header builds a real multipart file whose first bytes match its extension.
func header(t *testing.T, name, contentType string, size int) *multipart.FileHeader {
	t.Helper()
	body := make([]byte, size)
	copy(body, magic[filepath.Ext(name)])

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, name))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(8 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["files"][0]
}

func TestUploadBatchIndependentFailures(t *testing.T) {
	files := []*multipart.FileHeader{
		header(t, "ok.png", "image/png", 100),
		header(t, "bad.exe", "application/octet-stream", 100),
		header(t, "boom.pdf", "application/pdf", 100),
		header(t, "big.jpg", "image/jpeg", 3*1024*1024),
		header(t, "ok2.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", 100),
	}

	var calls []string
	nextID := uint(0)
	entries := UploadBatch(context.Background(), files, func(_ context.Context, f *multipart.FileHeader) (uint, error) {
		calls = append(calls, f.Filename)
		if f.Filename == "boom.pdf" {
			return 0, errors.New("storage unavailable")
		}
		nextID++
		return nextID, nil
	})

	require.Len(t, entries, 5)
	assert.Equal(t, []string{"ok.png", "boom.pdf", "ok2.docx"}, calls)
	assert.Equal(t, EntrySuccess, entries[0].Status)
	assert.Equal(t, SuccessDismissDelay.Milliseconds(), entries[0].DismissAfterMS)
	assert.Equal(t, EntryError, entries[1].Status)
	assert.Equal(t, EntryError, entries[2].Status)
	assert.Equal(t, "storage unavailable", entries[2].Error)
	assert.Zero(t, entries[2].DismissAfterMS)
	assert.Equal(t, EntryError, entries[3].Status)
	assert.Equal(t, EntrySuccess, entries[4].Status)
	assert.Equal(t, uint(2), entries[4].ItemID)

	ok, failed := Counts(entries)
	assert.Equal(t, 2, ok)
	assert.Equal(t, 3, failed)
}

func TestUploadBatchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entries := UploadBatch(ctx, []*multipart.FileHeader{header(t, "a.png", "image/png", 1)}, func(context.Context, *multipart.FileHeader) (uint, error) {
		t.Fatal("upload must not run after cancellation")
		return 0, nil
	})
	require.Len(t, entries, 1)
	assert.Equal(t, EntryError, entries[0].Status)
}

func TestEntryTransitions(t *testing.T) {
	e := NewEntry("a.png")
	assert.Equal(t, EntryUploading, e.Status)
	require.NoError(t, e.Succeed(7))
	assert.ErrorIs(t, e.Fail(errors.New("late")), ErrInvalidTransition)
	assert.ErrorIs(t, e.Succeed(8), ErrInvalidTransition)
	assert.Equal(t, uint(7), e.ItemID)
}
