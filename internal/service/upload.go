package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ragchat/internal/model"
	"github.com/capitalize-ai/ragchat/internal/storage"
	"github.com/capitalize-ai/ragchat/pkg/logger"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

const maxKeyNameLen = 100

// UploadService issues presigned upload and download URLs for attachments.
type UploadService struct {
	objects  storage.ObjectStore
	ttl      time.Duration
	maxBytes int64
	logger   *logger.Logger
	now      func() time.Time
}

// NewUploadService creates an upload service.
func NewUploadService(objects storage.ObjectStore, ttl time.Duration, maxBytes int64, log *logger.Logger) *UploadService {
	return &UploadService{
		objects:  objects,
		ttl:      ttl,
		maxBytes: maxBytes,
		logger:   log.Named("uploads"),
		now:      time.Now,
	}
}

// SanitizeFileName keeps a file name safe for use in an object key.
func SanitizeFileName(name string) string {
	name = unsafeKeyChars.ReplaceAllString(name, "_")
	if len(name) > maxKeyNameLen {
		name = name[len(name)-maxKeyNameLen:]
	}
	if name == "" {
		return "file"
	}
	return name
}

// UserKeyPrefix is the key prefix under which a subject's uploads live.
func UserKeyPrefix(userID string) string {
	return "uploads/" + SanitizeFileName(userID) + "/"
}

// OwnsObjectKey reports whether key was issued to userID by Presign.
func OwnsObjectKey(userID, key string) bool {
	if userID == "" || !strings.HasPrefix(key, UserKeyPrefix(userID)) {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

// UploadKey builds the object key for a new upload.
func UploadKey(userID, fileName string, at time.Time, id uuid.UUID) string {
	return fmt.Sprintf("%s%d-%s-%s", UserKeyPrefix(userID), at.UnixMilli(), id, SanitizeFileName(fileName))
}

// Presign validates the request and returns a presigned PUT for a fresh key.
func (s *UploadService) Presign(ctx context.Context, userID string, req *model.UploadRequest) (*model.UploadResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, describeValidation(err)
	}
	if s.maxBytes > 0 && req.FileSize > s.maxBytes {
		return nil, fmt.Errorf("%w: file is %d bytes, limit is %d", ErrInvalidRequest, req.FileSize, s.maxBytes)
	}

	now := s.now()
	key := UploadKey(userID, req.FileName, now, uuid.New())

	up, err := s.objects.PresignUpload(ctx, key, req.FileType, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	s.logger.Info("upload URL issued",
		zap.String("user_id", userID),
		zap.String("s3_key", key),
		zap.Int64("size", req.FileSize),
	)

	return &model.UploadResponse{
		UploadURL: up.URL,
		S3Key:     key,
		ExpiresIn: int64(s.ttl.Seconds()),
		ExpiresAt: now.Add(s.ttl).Unix(),
		Method:    up.Method,
		Headers:   up.Headers,
	}, nil
}

// PresignDownload returns a short-lived GET URL for one of the subject's own
// stored attachments. ExpiresAt is in Unix milliseconds.
func (s *UploadService) PresignDownload(ctx context.Context, userID string, req *model.DownloadRequest) (*model.DownloadResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, describeValidation(err)
	}
	if !OwnsObjectKey(userID, req.S3Key) {
		s.logger.Warn("download refused for foreign key",
			zap.String("user_id", userID),
			zap.String("s3_key", req.S3Key),
		)
		return nil, ErrObjectForbidden
	}

	now := s.now()
	down, err := s.objects.PresignDownload(ctx, req.S3Key, s.ttl)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to presign download: %w", err)
	}

	return &model.DownloadResponse{
		Method:       "presignedUrl",
		PresignedURL: down.URL,
		ExpiresIn:    int64(s.ttl.Seconds()),
		ExpiresAt:    now.Add(s.ttl).UnixMilli(),
		S3Key:        req.S3Key,
	}, nil
}
