package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shiweiumichedu/autovet-app-pwa/internal/domain"
)

func newAttachmentFixture(t *testing.T, analyzer *fakeAnalyzer) (*fakeRepo, *fakeStorage, *AttachmentUseCase, *domain.Inspection) {
	t.Helper()
	repo := newFakeRepo()
	seedTemplates(repo)
	storage := newFakeStorage()
	uc := NewAttachmentUseCase(repo, storage, analyzer, zap.NewNop())

	session := newSessionUseCase(repo, storage)
	inspection, err := session.Create(context.Background(), testSession(), miniClubman())
	require.NoError(t, err)
	return repo, storage, uc, inspection
}

func TestAttachPhotoStoresAndAnalyzes(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &domain.AnalysisResult{
		Analysis: "surface rust on the rear wheel arch",
		Verdict:  domain.VerdictWarning,
	}}
	repo, storage, uc, inspection := newAttachmentFixture(t, analyzer)

	photo, err := uc.AttachPhoto(context.Background(), inspection, 2, 1, []byte("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)
	uc.Wait()

	key := inspection.ID.String() + "/2/1.jpg"
	assert.True(t, storage.has(key))
	assert.Equal(t, "mem://"+key, photo.PhotoURL)

	stored := repo.getPhoto(photo.ID)
	require.NotNil(t, stored)
	require.NotNil(t, stored.Analysis)
	assert.Equal(t, "surface rust on the rear wheel arch", *stored.Analysis)
	require.NotNil(t, stored.Verdict)
	assert.Equal(t, domain.VerdictWarning, *stored.Verdict)
	assert.NotNil(t, stored.AnalyzedAt)

	// The prompt carries the vehicle and the step context.
	require.Len(t, analyzer.prompts, 1)
	assert.Contains(t, analyzer.prompts[0], "2009 Mini Clubman S")
	assert.Contains(t, analyzer.prompts[0], "Exterior")
}

func TestAttachPhotoSlotBounds(t *testing.T) {
	_, _, uc, inspection := newAttachmentFixture(t, &fakeAnalyzer{})

	cases := []struct {
		name       string
		stepNumber int
		photoOrder int
		field      string
	}{
		{"vehicle info step", 1, 1, "step_number"},
		{"test drive step", 7, 1, "step_number"},
		{"unknown step", 9, 1, "step_number"},
		{"slot zero", 3, 0, "photo_order"},
		{"slot beyond max", 3, DefaultMaxPhotos + 1, "photo_order"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.AttachPhoto(context.Background(), inspection, tc.stepNumber, tc.photoOrder, []byte("x"), "image/jpeg")
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	_, err := uc.AttachPhoto(context.Background(), inspection, 3, 1, nil, "image/jpeg")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "file", verr.Field)
}

func TestAttachPhotoHonorsTemplateSlotCount(t *testing.T) {
	repo := newFakeRepo()
	seedTemplates(repo)
	// The exterior step gets extra photo slots in this template.
	for i := range repo.templates {
		if repo.templates[i].StepNumber == 2 {
			repo.templates[i].MaxPhotos = 4
		}
	}
	storage := newFakeStorage()
	uc := NewAttachmentUseCase(repo, storage, &fakeAnalyzer{}, zap.NewNop())

	session := newSessionUseCase(repo, storage)
	inspection, err := session.Create(context.Background(), testSession(), miniClubman())
	require.NoError(t, err)

	_, err = uc.AttachPhoto(context.Background(), inspection, 2, 3, []byte("x"), "image/jpeg")
	require.NoError(t, err)
	_, err = uc.AttachPhoto(context.Background(), inspection, 2, 4, []byte("x"), "image/jpeg")
	require.NoError(t, err)
	uc.Wait()

	_, err = uc.AttachPhoto(context.Background(), inspection, 2, 5, []byte("x"), "image/jpeg")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "photo_order", verr.Field)
	assert.Contains(t, verr.Message, "between 1 and 4")

	// Other steps keep the stock slot count.
	_, err = uc.AttachPhoto(context.Background(), inspection, 3, 3, []byte("x"), "image/jpeg")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "photo_order", verr.Field)
}

func TestReattachPhotoReplacesSlot(t *testing.T) {
	repo, storage, uc, inspection := newAttachmentFixture(t, &fakeAnalyzer{})

	first, err := uc.AttachPhoto(context.Background(), inspection, 2, 1, []byte("one"), "image/jpeg")
	require.NoError(t, err)
	second, err := uc.AttachPhoto(context.Background(), inspection, 2, 1, []byte("two"), "image/jpeg")
	require.NoError(t, err)
	uc.Wait()

	assert.Nil(t, repo.getPhoto(first.ID))
	assert.NotNil(t, repo.getPhoto(second.ID))

	keys, err := storage.List(context.Background(), inspection.ID.String()+"/2/")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestDetachPhotoDiscardsLateAnalysis(t *testing.T) {
	gate := make(chan struct{})
	analyzer := &fakeAnalyzer{
		result: &domain.AnalysisResult{Analysis: "late", Verdict: domain.VerdictIssue},
		gate:   gate,
	}
	repo, storage, uc, inspection := newAttachmentFixture(t, analyzer)

	photo, err := uc.AttachPhoto(context.Background(), inspection, 4, 2, []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)

	// Remove the photo while analysis is still in flight, then let the
	// analysis finish. The result has nowhere to land and is dropped.
	require.NoError(t, uc.DetachPhoto(context.Background(), inspection.ID, photo.ID, 4, 2))
	close(gate)
	uc.Wait()

	assert.Nil(t, repo.getPhoto(photo.ID))
	assert.False(t, storage.has(inspection.ID.String()+"/4/2.jpg"))
}

func TestAnalyzerFailureLeavesPhotoWithoutAnalysis(t *testing.T) {
	analyzer := &fakeAnalyzer{err: assert.AnError}
	repo, _, uc, inspection := newAttachmentFixture(t, analyzer)

	photo, err := uc.AttachPhoto(context.Background(), inspection, 2, 1, []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)
	uc.Wait()

	stored := repo.getPhoto(photo.ID)
	require.NotNil(t, stored)
	assert.Nil(t, stored.Analysis)
	assert.Nil(t, stored.Verdict)
}

func TestInvalidVerdictDefaultsToOK(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &domain.AnalysisResult{
		Analysis: "all good",
		Verdict:  domain.Verdict("excellent"),
	}}
	repo, _, uc, inspection := newAttachmentFixture(t, analyzer)

	photo, err := uc.AttachPhoto(context.Background(), inspection, 5, 1, []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)
	uc.Wait()

	stored := repo.getPhoto(photo.ID)
	require.NotNil(t, stored)
	require.NotNil(t, stored.Verdict)
	assert.Equal(t, domain.VerdictOK, *stored.Verdict)
}

func TestAttachReportRoundTrip(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &domain.AnalysisResult{
		Analysis: "two owners, no reported accidents",
		Verdict:  domain.VerdictOK,
	}}
	repo, storage, uc, inspection := newAttachmentFixture(t, analyzer)

	report, err := uc.AttachReport(context.Background(), inspection, domain.ReportCarfax, "carfax-2009-clubman.pdf", []byte("pdf"), "application/pdf")
	require.NoError(t, err)
	uc.Wait()

	assert.Equal(t, "carfax-2009-clubman.pdf", report.FileName)
	assert.Equal(t, "mem://"+inspection.ID.String()+"/reports/carfax.pdf", report.FileURL)
	assert.True(t, storage.has(inspection.ID.String()+"/reports/carfax.pdf"))
	stored := repo.getReport(inspection.ID, domain.ReportCarfax)
	require.NotNil(t, stored)
	require.NotNil(t, stored.Analysis)
	assert.Equal(t, "two owners, no reported accidents", *stored.Analysis)

	require.NoError(t, uc.DetachReport(context.Background(), inspection.ID, domain.ReportCarfax))
	assert.Nil(t, repo.getReport(inspection.ID, domain.ReportCarfax))
	assert.False(t, storage.has(inspection.ID.String()+"/reports/carfax.pdf"))
}

func TestAttachReportReplacesStaleFile(t *testing.T) {
	repo, storage, uc, inspection := newAttachmentFixture(t, &fakeAnalyzer{})

	_, err := uc.AttachReport(context.Background(), inspection, domain.ReportOBD2, "scan.pdf", []byte("pdf"), "application/pdf")
	require.NoError(t, err)
	// Second upload of the same type with a different extension must not
	// leave the old file behind.
	_, err = uc.AttachReport(context.Background(), inspection, domain.ReportOBD2, "scan.png", []byte("png"), "image/png")
	require.NoError(t, err)
	uc.Wait()

	assert.False(t, storage.has(inspection.ID.String()+"/reports/obd2.pdf"))
	assert.True(t, storage.has(inspection.ID.String()+"/reports/obd2.png"))
	stored := repo.getReport(inspection.ID, domain.ReportOBD2)
	require.NotNil(t, stored)
	assert.Equal(t, "scan.png", stored.FileName)
}

func TestAttachReportRejectsUnknownType(t *testing.T) {
	_, _, uc, inspection := newAttachmentFixture(t, &fakeAnalyzer{})

	_, err := uc.AttachReport(context.Background(), inspection, domain.ReportType("warranty"), "w.pdf", []byte("pdf"), "application/pdf")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "report_type", verr.Field)
}

func TestReportPromptsDifferByType(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	_, _, uc, inspection := newAttachmentFixture(t, analyzer)

	_, err := uc.AttachReport(context.Background(), inspection, domain.ReportOBD2, "scan.pdf", []byte("pdf"), "application/pdf")
	require.NoError(t, err)
	_, err = uc.AttachReport(context.Background(), inspection, domain.ReportAutocheck, "history.pdf", []byte("pdf"), "application/pdf")
	require.NoError(t, err)
	uc.Wait()

	// Analysis runs on detached goroutines, so prompt order is not fixed.
	require.Len(t, analyzer.prompts, 2)
	joined := analyzer.prompts[0] + analyzer.prompts[1]
	assert.Contains(t, joined, "trouble codes")
	assert.Contains(t, joined, "title brands")
}
