package filestorage

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/renderiq/render-server/internal/config"
)

type FileKind int

const (
	FileKindBytes FileKind = iota
	FileKindStream
)

var ErrUnknownFileKind = errors.New("unknown file kind")

type FileInfo struct {
	Name      string
	Extension string
	Kind      FileKind
	Content   any
	IsTemp    bool
}

type FileStorage interface {
	Upload(file FileInfo) (string, error)
	UploadMultiple(files []FileInfo) ([]string, error)
	GetFile(filename string) (*FileInfo, error)
	ResolveFile(filename string, subfolder string, isTemp bool) (string, error)
}

func NewFileInfo(name string, extension string, content []byte, isTemp bool) FileInfo {
	return FileInfo{
		Name:      name,
		Extension: extension,
		Kind:      FileKindBytes,
		Content:   content,
		IsTemp:    isTemp,
	}
}

func NewStreamFileInfo(name string, extension string, content io.Reader, isTemp bool) FileInfo {
	return FileInfo{
		Name:      name,
		Extension: extension,
		Kind:      FileKindStream,
		Content:   content,
		IsTemp:    isTemp,
	}
}

func NewFileStorage(cfg *config.Config) (FileStorage, error) {
	filesystem := strings.ToLower(cfg.FilesystemType)

	if filesystem == config.FilesystemLocal {
		return NewLocalFileStorage(cfg)
	} else if filesystem == config.FilesystemS3 {
		return NewS3FileStorage(cfg)
	}

	return nil, fmt.Errorf("invalid filesystem type %s", cfg.FilesystemType)
}
