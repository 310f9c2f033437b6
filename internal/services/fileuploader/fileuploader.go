package fileuploader

import (
	"github.com/gammazero/workerpool"
	"github.com/renderiq/render-server/internal/services/filestorage"
	"github.com/renderiq/render-server/internal/utils/hashutil"
)

// Uploader pushes generated outputs to file storage on a bounded worker pool
// so a burst of completions cannot exhaust connections.
type Uploader struct {
	wp          *workerpool.WorkerPool
	filestorage filestorage.FileStorage
}

func NewFileUploader(filestorage filestorage.FileStorage, maxWorkers int) *Uploader {
	return &Uploader{
		wp:          workerpool.New(maxWorkers),
		filestorage: filestorage,
	}
}

func (w *Uploader) Stop() {
	w.wp.Stop()
}

func (w *Uploader) Upload(file filestorage.FileInfo, response chan string) {
	w.wp.Submit(func() {
		w.upload(file, response)
	})
}

// UploadBytes content-addresses the file by its blake3 hash so identical
// outputs dedupe to one object.
func (w *Uploader) UploadBytes(file []byte, extension string, response chan string) {
	fileInfo := filestorage.NewFileInfo(hashutil.Blake3Hash(file), extension, file, false)
	w.Upload(fileInfo, response)
}

func (w *Uploader) upload(file filestorage.FileInfo, response chan string) {
	defer close(response)

	if w.filestorage == nil {
		return
	}

	url, err := w.filestorage.Upload(file)
	if err != nil {
		return
	}

	response <- url
}
