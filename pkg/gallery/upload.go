package gallery

import (
	"context"
	"errors"
	"mime/multipart"
	"time"

	"github.com/google/uuid"

	"qrcard_backend/pkg/utils/validation"
)

type EntryStatus string

const (
	EntryUploading EntryStatus = "uploading"
	EntrySuccess   EntryStatus = "success"
	EntryError     EntryStatus = "error"
)

// SuccessDismissDelay is how long clients keep a successful entry visible.
// Failed entries stay until the user dismisses them.
const SuccessDismissDelay = 1200 * time.Millisecond

var ErrInvalidTransition = errors.New("upload entry is no longer uploading")

// Entry tracks one file of a batch.
type Entry struct {
	ID             string      `json:"id"`
	FileName       string      `json:"file_name"`
	Status         EntryStatus `json:"status"`
	Error          string      `json:"error,omitempty"`
	DismissAfterMS int64       `json:"dismiss_after_ms,omitempty"`
	ItemID         uint        `json:"item_id,omitempty"`
}

func NewEntry(fileName string) *Entry {
	return &Entry{ID: uuid.NewString(), FileName: fileName, Status: EntryUploading}
}

func (e *Entry) Succeed(itemID uint) error {
	if e.Status != EntryUploading {
		return ErrInvalidTransition
	}
	e.Status = EntrySuccess
	e.ItemID = itemID
	e.DismissAfterMS = SuccessDismissDelay.Milliseconds()
	return nil
}

func (e *Entry) Fail(err error) error {
	if e.Status != EntryUploading {
		return ErrInvalidTransition
	}
	e.Status = EntryError
	if err != nil {
		e.Error = err.Error()
	}
	return nil
}

// UploadFunc stores one validated file and returns the created item id.
type UploadFunc func(ctx context.Context, file *multipart.FileHeader) (uint, error)

// UploadBatch validates and uploads files one after another. A failing file
// never stops its siblings.
func UploadBatch(ctx context.Context, files []*multipart.FileHeader, upload UploadFunc) []Entry {
	entries := make([]Entry, 0, len(files))
	for _, file := range files {
		name := ""
		if file != nil {
			name = file.Filename
		}
		entry := NewEntry(name)

		if err := ctx.Err(); err != nil {
			_ = entry.Fail(err)
		} else if err := validation.ValidateGalleryFile(file); err != nil {
			_ = entry.Fail(err)
		} else if id, err := upload(ctx, file); err != nil {
			_ = entry.Fail(err)
		} else {
			_ = entry.Succeed(id)
		}
		entries = append(entries, *entry)
	}
	return entries
}

// Counts returns the number of successful and failed entries.
func Counts(entries []Entry) (succeeded, failed int) {
	for _, e := range entries {
		switch e.Status {
		case EntrySuccess:
			succeeded++
		case EntryError:
			failed++
		}
	}
	return succeeded, failed
}
