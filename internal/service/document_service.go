package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thesishub/thesishub-api/internal/models"
	appErrors "github.com/thesishub/thesishub-api/pkg/errors"
	"github.com/thesishub/thesishub-api/pkg/jobs"
)

const jobTypeFileCleanup = "document_file_cleanup"

type documentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, id string) (*models.Document, error)
	ListByGroup(ctx context.Context, groupID string) ([]models.Document, error)
	SetState(ctx context.Context, id string, state models.DocumentState) error
	Delete(ctx context.Context, id string) (string, error)
}

type documentGroupRepository interface {
	FindByID(ctx context.Context, id string) (*models.Group, error)
	MemberIDs(ctx context.Context, groupID string) ([]string, error)
}

type documentStorage interface {
	SaveStream(key string, r io.Reader) (string, error)
	Open(key string) (*os.File, error)
}

type signedURLSigner interface {
	Generate(docID, fileKey string) (string, time.Time, error)
	Parse(token string) (docID, fileKey string, expiresAt time.Time, err error)
}

type documentNotifier interface {
	DocumentUploaded(ctx context.Context, group *models.Group, docType models.DocumentType)
	DocumentReviewed(ctx context.Context, group *models.Group, docType models.DocumentType, state models.DocumentState)
	MarkViewed(ctx context.Context, userID, groupID string) error
}

type cleanupQueue interface {
	Enqueue(job jobs.Job) error
}

// SignedDownload is a time-limited download grant for a document.
type SignedDownload struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DocumentService implements milestone document upload, review, listing and
// signed downloads.
type DocumentService struct {
	documents documentRepository
	groups    documentGroupRepository
	storage   documentStorage
	signer    signedURLSigner
	notifier  documentNotifier
	cleanup   cleanupQueue
	cache     overviewCache
	logger    *zap.Logger
	maxBytes  int64
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(documents documentRepository, groups documentGroupRepository, storage documentStorage, signer signedURLSigner, notifier documentNotifier, cleanup cleanupQueue, cache overviewCache, logger *zap.Logger, maxBytes int64) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = 25 * 1024 * 1024
	}
	return &DocumentService{
		documents: documents,
		groups:    groups,
		storage:   storage,
		signer:    signer,
		notifier:  notifier,
		cleanup:   cleanup,
		cache:     cache,
		logger:    logger,
		maxBytes:  maxBytes,
	}
}

// Upload stores a milestone file for the student's group and records it in
// PENDING state. The file lands under the group's invite code with a random
// name so uploads never collide.
func (s *DocumentService) Upload(ctx context.Context, studentID, groupID string, docType models.DocumentType, fileName string, size int64, r io.Reader) (*models.Document, error) {
	if !models.ValidDocumentType(docType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown document type")
	}
	if size > s.maxBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds the upload size limit")
	}

	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, groupID, studentID); err != nil {
		return nil, err
	}

	key, err := buildFileKey(group.InviteCode, fileName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build file key")
	}
	// One byte past the limit is enough to tell a too-long stream from one
	// that fills the limit exactly.
	counted := &countingReader{r: io.LimitReader(r, s.maxBytes+1)}
	if _, err := s.storage.SaveStream(key, counted); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}
	if counted.n > s.maxBytes {
		s.enqueueCleanup(key)
		return nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds the upload size limit")
	}

	doc := &models.Document{
		GroupID:  groupID,
		Type:     docType,
		FileKey:  key,
		FileName: filepath.Base(fileName),
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		s.enqueueCleanup(key)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record document")
	}

	s.notifier.DocumentUploaded(ctx, group, docType)
	s.invalidateOverview(ctx, groupID)
	return doc, nil
}

// Review records the supervisor's accept or reject decision and notifies the
// group's students.
func (s *DocumentService) Review(ctx context.Context, teacherID, docID string, accept bool) (*models.Document, error) {
	doc, err := s.load(ctx, docID)
	if err != nil {
		return nil, err
	}
	group, err := s.loadGroup(ctx, doc.GroupID)
	if err != nil {
		return nil, err
	}
	if role, ok := group.RoleOf(teacherID); !ok || role != models.RoleSupervisor {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the supervisor can review documents")
	}

	state := models.DocumentAccepted
	if !accept {
		state = models.DocumentRejected
	}
	if err := s.documents.SetState(ctx, docID, state); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record review")
	}
	doc.State = state
	now := time.Now().UTC()
	doc.ReviewedAt = &now

	s.notifier.DocumentReviewed(ctx, group, doc.Type, state)
	s.invalidateOverview(ctx, doc.GroupID)
	return doc, nil
}

// ListByGroup returns the group's documents. When the viewer is a student of
// the group their pending notices for the group are marked viewed, the list
// view doubling as the read receipt.
func (s *DocumentService) ListByGroup(ctx context.Context, viewerID, groupID string) ([]models.Document, error) {
	if _, err := s.loadGroup(ctx, groupID); err != nil {
		return nil, err
	}
	docs, err := s.documents.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}

	if s.isMember(ctx, groupID, viewerID) {
		if err := s.notifier.MarkViewed(ctx, viewerID, groupID); err != nil {
			s.logger.Warn("failed to mark notifications viewed", zap.String("group_id", groupID), zap.Error(err))
		}
	}
	return docs, nil
}

// DownloadGrant issues a signed, time-limited token for fetching the file.
func (s *DocumentService) DownloadGrant(ctx context.Context, docID string) (*SignedDownload, error) {
	doc, err := s.load(ctx, docID)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(doc.ID, doc.FileKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
	}
	return &SignedDownload{Token: token, ExpiresAt: expiresAt}, nil
}

// Download validates a signed token and opens the referenced file.
func (s *DocumentService) Download(ctx context.Context, token string) (*models.Document, *os.File, error) {
	docID, fileKey, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	doc, err := s.load(ctx, docID)
	if err != nil {
		return nil, nil, err
	}
	if doc.FileKey != fileKey {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "download token does not match the document")
	}
	file, err := s.storage.Open(doc.FileKey)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
	}
	return doc, file, nil
}

// Delete removes a document record and queues best-effort removal of the
// stored file.
func (s *DocumentService) Delete(ctx context.Context, actorID string, actorRole models.UserRole, docID string) error {
	doc, err := s.load(ctx, docID)
	if err != nil {
		return err
	}
	if actorRole != models.RoleAdmin && !s.isMember(ctx, doc.GroupID, actorID) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to delete this document")
	}

	fileKey, err := s.documents.Delete(ctx, docID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete document")
	}

	s.enqueueCleanup(fileKey)
	s.invalidateOverview(ctx, doc.GroupID)
	return nil
}

func (s *DocumentService) load(ctx context.Context, docID string) (*models.Document, error) {
	doc, err := s.documents.FindByID(ctx, docID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	return doc, nil
}

func (s *DocumentService) loadGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	return group, nil
}

func (s *DocumentService) requireMember(ctx context.Context, groupID, userID string) error {
	if !s.isMember(ctx, groupID, userID) {
		return appErrors.Clone(appErrors.ErrForbidden, "not a member of this group")
	}
	return nil
}

func (s *DocumentService) isMember(ctx context.Context, groupID, userID string) bool {
	memberIDs, err := s.groups.MemberIDs(ctx, groupID)
	if err != nil {
		s.logger.Warn("failed to load members", zap.String("group_id", groupID), zap.Error(err))
		return false
	}
	for _, id := range memberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (s *DocumentService) enqueueCleanup(fileKey string) {
	if s.cleanup == nil || fileKey == "" {
		return
	}
	if err := s.cleanup.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobTypeFileCleanup,
		Payload: fileKey,
	}); err != nil {
		s.logger.Warn("failed to enqueue file cleanup", zap.String("file_key", fileKey), zap.Error(err))
	}
}

func (s *DocumentService) invalidateOverview(ctx context.Context, groupID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, overviewCacheKey(groupID)); err != nil {
		s.logger.Warn("overview cache invalidation failed", zap.Error(err))
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func buildFileKey(inviteCode, fileName string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	ext := filepath.Ext(fileName)
	return filepath.Join(inviteCode, hex.EncodeToString(buf)+ext), nil
}
