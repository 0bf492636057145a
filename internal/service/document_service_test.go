package service

import (
	"context"
	"database/sql"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thesishub/thesishub-api/internal/models"
	appErrors "github.com/thesishub/thesishub-api/pkg/errors"
	"github.com/thesishub/thesishub-api/pkg/jobs"
)

type mockDocumentRepo struct {
	docs map[string]models.Document
}

func (r *mockDocumentRepo) Create(ctx context.Context, doc *models.Document) error {
	if r.docs == nil {
		r.docs = make(map[string]models.Document)
	}
	doc.ID = "doc-new"
	doc.State = models.DocumentPending
	r.docs[doc.ID] = *doc
	return nil
}

func (r *mockDocumentRepo) FindByID(ctx context.Context, id string) (*models.Document, error) {
	if d, ok := r.docs[id]; ok {
		return &d, nil
	}
	return nil, sql.ErrNoRows
}

func (r *mockDocumentRepo) ListByGroup(ctx context.Context, groupID string) ([]models.Document, error) {
	var out []models.Document
	for _, d := range r.docs {
		if d.GroupID == groupID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *mockDocumentRepo) SetState(ctx context.Context, id string, state models.DocumentState) error {
	d := r.docs[id]
	d.State = state
	r.docs[id] = d
	return nil
}

func (r *mockDocumentRepo) Delete(ctx context.Context, id string) (string, error) {
	d, ok := r.docs[id]
	if !ok {
		return "", sql.ErrNoRows
	}
	delete(r.docs, id)
	return d.FileKey, nil
}

type mockDocumentGroupRepo struct {
	group   *models.Group
	members []string
}

func (r *mockDocumentGroupRepo) FindByID(ctx context.Context, id string) (*models.Group, error) {
	if r.group == nil || r.group.ID != id {
		return nil, sql.ErrNoRows
	}
	return r.group, nil
}

func (r *mockDocumentGroupRepo) MemberIDs(ctx context.Context, groupID string) ([]string, error) {
	return r.members, nil
}

type mockStorage struct {
	saved map[string]string
}

func (s *mockStorage) SaveStream(key string, r io.Reader) (string, error) {
	if s.saved == nil {
		s.saved = make(map[string]string)
	}
	data, _ := io.ReadAll(r)
	s.saved[key] = string(data)
	return key, nil
}

func (s *mockStorage) Open(key string) (*os.File, error) {
	return nil, os.ErrNotExist
}

type mockSigner struct{}

func (mockSigner) Generate(docID, fileKey string) (string, time.Time, error) {
	return docID + ".token", time.Now().Add(time.Minute), nil
}

func (mockSigner) Parse(token string) (string, string, time.Time, error) {
	return strings.TrimSuffix(token, ".token"), "", time.Time{}, nil
}

type recordingNotifier struct {
	uploaded []models.DocumentType
	reviewed []models.DocumentState
	viewed   []string
}

func (n *recordingNotifier) DocumentUploaded(ctx context.Context, group *models.Group, docType models.DocumentType) {
	n.uploaded = append(n.uploaded, docType)
}

func (n *recordingNotifier) DocumentReviewed(ctx context.Context, group *models.Group, docType models.DocumentType, state models.DocumentState) {
	n.reviewed = append(n.reviewed, state)
}

func (n *recordingNotifier) MarkViewed(ctx context.Context, userID, groupID string) error {
	n.viewed = append(n.viewed, userID+"|"+groupID)
	return nil
}

type mockQueue struct {
	jobs []jobs.Job
}

func (q *mockQueue) Enqueue(job jobs.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func newDocumentFixture() (*DocumentService, *mockDocumentRepo, *mockDocumentGroupRepo, *recordingNotifier, *mockQueue) {
	supervisor := "teacher-1"
	groups := &mockDocumentGroupRepo{
		group: &models.Group{
			ID:           "group-1",
			Title:        "Solar Tracker",
			InviteCode:   "ABCD1234",
			Approved:     true,
			SupervisorID: &supervisor,
		},
		members: []string{"student-1", "student-2"},
	}
	docs := &mockDocumentRepo{}
	notifier := &recordingNotifier{}
	queue := &mockQueue{}
	svc := NewDocumentService(docs, groups, &mockStorage{}, mockSigner{}, notifier, queue, nil, zap.NewNop(), 1024)
	return svc, docs, groups, notifier, queue
}

func TestDocumentUploadStoresAndNotifies(t *testing.T) {
	svc, docs, _, notifier, _ := newDocumentFixture()

	doc, err := svc.Upload(context.Background(), "student-1", "group-1", models.DocumentProposal, "proposal.pdf", 100, strings.NewReader("content"))
	require.NoError(t, err)
	assert.Equal(t, models.DocumentPending, doc.State)
	assert.True(t, strings.HasPrefix(doc.FileKey, "ABCD1234/"))
	assert.Equal(t, "proposal.pdf", doc.FileName)
	assert.Len(t, docs.docs, 1)
	assert.Equal(t, []models.DocumentType{models.DocumentProposal}, notifier.uploaded)
}

func TestDocumentUploadRejectsNonMember(t *testing.T) {
	svc, _, _, _, _ := newDocumentFixture()

	_, err := svc.Upload(context.Background(), "stranger", "group-1", models.DocumentProposal, "proposal.pdf", 100, strings.NewReader("content"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestDocumentUploadRejectsUnknownType(t *testing.T) {
	svc, _, _, _, _ := newDocumentFixture()

	_, err := svc.Upload(context.Background(), "student-1", "group-1", "Final Thesis", "thesis.pdf", 100, strings.NewReader("content"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDocumentUploadRejectsOversizedFile(t *testing.T) {
	svc, _, _, _, _ := newDocumentFixture()

	_, err := svc.Upload(context.Background(), "student-1", "group-1", models.DocumentProposal, "big.pdf", 2048, strings.NewReader("content"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDocumentUploadRejectsStreamLongerThanDeclared(t *testing.T) {
	svc, docs, _, _, queue := newDocumentFixture()

	body := strings.NewReader(strings.Repeat("x", 2048))
	_, err := svc.Upload(context.Background(), "student-1", "group-1", models.DocumentProposal, "big.pdf", 100, body)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, docs.docs)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, jobTypeFileCleanup, queue.jobs[0].Type)
}

func TestDocumentReviewRequiresSupervisor(t *testing.T) {
	svc, docs, _, _, _ := newDocumentFixture()
	docs.docs = map[string]models.Document{
		"doc-1": {ID: "doc-1", GroupID: "group-1", Type: models.DocumentProposal, State: models.DocumentPending},
	}

	_, err := svc.Review(context.Background(), "teacher-other", "doc-1", true)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestDocumentReviewRecordsDecisionAndNotifies(t *testing.T) {
	svc, docs, _, notifier, _ := newDocumentFixture()
	docs.docs = map[string]models.Document{
		"doc-1": {ID: "doc-1", GroupID: "group-1", Type: models.DocumentProposal, State: models.DocumentPending},
	}

	doc, err := svc.Review(context.Background(), "teacher-1", "doc-1", false)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentRejected, doc.State)
	assert.Equal(t, []models.DocumentState{models.DocumentRejected}, notifier.reviewed)
	assert.Equal(t, models.DocumentRejected, docs.docs["doc-1"].State)
}

func TestDocumentListMarksNotificationsViewedForMembers(t *testing.T) {
	svc, _, _, notifier, _ := newDocumentFixture()

	_, err := svc.ListByGroup(context.Background(), "student-1", "group-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"student-1|group-1"}, notifier.viewed)

	notifier.viewed = nil
	_, err = svc.ListByGroup(context.Background(), "teacher-1", "group-1")
	require.NoError(t, err)
	assert.Empty(t, notifier.viewed)
}

func TestDocumentDeleteQueuesFileCleanup(t *testing.T) {
	svc, docs, _, _, queue := newDocumentFixture()
	docs.docs = map[string]models.Document{
		"doc-1": {ID: "doc-1", GroupID: "group-1", FileKey: "ABCD1234/abc.pdf"},
	}

	err := svc.Delete(context.Background(), "student-1", models.RoleStudent, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, docs.docs)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, jobTypeFileCleanup, queue.jobs[0].Type)
	assert.Equal(t, "ABCD1234/abc.pdf", queue.jobs[0].Payload)
}
