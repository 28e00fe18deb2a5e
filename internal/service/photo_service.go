package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/openregistrar/registrar-api/internal/models"
	appErrors "github.com/openregistrar/registrar-api/pkg/errors"
	"github.com/openregistrar/registrar-api/pkg/storage"
)

type photoStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	UpdatePhotoPath(ctx context.Context, id string, path *string) error
}

// PhotoConfig bounds uploaded profile photos.
type PhotoConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// PhotoService stores and serves student profile photos.
type PhotoService struct {
	students photoStudentRepository
	storage  *storage.LocalStorage
	config   PhotoConfig
	logger   *zap.Logger
}

// NewPhotoService constructs a PhotoService.
func NewPhotoService(students photoStudentRepository, store *storage.LocalStorage, config PhotoConfig, logger *zap.Logger) *PhotoService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxFileSizeBytes <= 0 {
		config.MaxFileSizeBytes = 5 << 20
	}
	if len(config.AllowedMIMEs) == 0 {
		config.AllowedMIMEs = []string{"image/jpeg", "image/png"}
	}
	return &PhotoService{students: students, storage: store, config: config, logger: logger}
}

// Upload validates and stores a new profile photo, replacing any previous one.
func (s *PhotoService) Upload(ctx context.Context, studentID, filename, contentType string, size int64, r io.Reader) (*models.Student, error) {
	if size > s.config.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("photo exceeds the maximum size of %d bytes", s.config.MaxFileSizeBytes))
	}
	if !s.mimeAllowed(contentType) {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("content type %q is not allowed for photos", contentType))
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".jpg"
	}
	relPath := fmt.Sprintf("photos/%s%s", student.ID, ext)
	limited := io.LimitReader(r, s.config.MaxFileSizeBytes)
	if _, err := s.storage.SaveStream(relPath, limited); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store photo")
	}

	if student.PhotoPath != nil && *student.PhotoPath != relPath {
		if err := s.storage.Delete(*student.PhotoPath); err != nil {
			s.logger.Warn("failed to remove previous photo", zap.String("student_id", student.ID), zap.Error(err))
		}
	}

	if err := s.students.UpdatePhotoPath(ctx, student.ID, &relPath); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record photo")
	}
	student.PhotoPath = &relPath
	return student, nil
}

// Open returns a handle on the stored photo for streaming to the client.
func (s *PhotoService) Open(ctx context.Context, studentID string) (*os.File, string, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	if student.PhotoPath == nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "student has no photo")
	}
	file, err := s.storage.Open(*student.PhotoPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "photo no longer available")
	}
	contentType := "image/jpeg"
	if strings.HasSuffix(*student.PhotoPath, ".png") {
		contentType = "image/png"
	}
	return file, contentType, nil
}

// Delete removes the stored photo and clears the student record.
func (s *PhotoService) Delete(ctx context.Context, studentID string) error {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	if student.PhotoPath == nil {
		return nil
	}
	if err := s.storage.Delete(*student.PhotoPath); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete photo")
	}
	if err := s.students.UpdatePhotoPath(ctx, student.ID, nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear photo record")
	}
	return nil
}

func (s *PhotoService) mimeAllowed(contentType string) bool {
	for _, allowed := range s.config.AllowedMIMEs {
		if strings.EqualFold(allowed, contentType) {
			return true
		}
	}
	return false
}
