package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"evoto/internal/verification/models"
	"evoto/internal/verification/service/mocks"
	dErrors "evoto/pkg/domain-errors"
	"evoto/pkg/platform/sentinel"
)

type SessionServiceSuite struct {
	suite.Suite
	ctx      context.Context
	verifier *mocks.MockVerifier
	objects  *mocks.MockObjectStore
	sessions *mocks.MockSessionStore
	service  *Service
	now      time.Time
}

func TestSessionServiceSuite(t *testing.T) {
	suite.Run(t, new(SessionServiceSuite))
}

func (s *SessionServiceSuite) SetupTest() {
	s.ctx = context.Background()
	ctrl := gomock.NewController(s.T())
	s.verifier = mocks.NewMockVerifier(ctrl)
	s.objects = mocks.NewMockObjectStore(ctrl)
	s.sessions = mocks.NewMockSessionStore(ctrl)
	s.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.service = NewService(s.verifier, s.objects, s.sessions,
		WithSessionTTL(10*time.Minute),
		WithServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithServiceClock(func() time.Time { return s.now }),
	)
}

func (s *SessionServiceSuite) submitRequest() SubmitRequest {
	return SubmitRequest{
		SessionID:  "sess-1",
		Subject:    "sub-1",
		ClaimedRUT: "12.345.678-5",
		Front:      Upload{Data: []byte("front"), ContentType: "image/jpeg"},
		Back:       Upload{Data: []byte("back"), ContentType: "image/png"},
	}
}

func (s *SessionServiceSuite) expectUploads() {
	s.objects.EXPECT().Put(gomock.Any(), gomock.Any(), []byte("front"), "image/jpeg").
		DoAndReturn(func(_ context.Context, key string, _ []byte, _ string) (string, error) { return key, nil })
	s.objects.EXPECT().Put(gomock.Any(), gomock.Any(), []byte("back"), "image/png").
		DoAndReturn(func(_ context.Context, key string, _ []byte, _ string) (string, error) { return key, nil })
}

func (s *SessionServiceSuite) TestSubmitRecordsResultAndAttempts() {
	loginAt := s.now.Add(-5 * time.Minute)
	s.sessions.EXPECT().Get(gomock.Any(), "sess-1").Return(&models.Session{
		ID: "sess-1", Subject: "sub-1", LoginAt: loginAt, Attempts: 1, DetectionTime: time.Second,
	}, nil)
	s.expectUploads()
	s.verifier.EXPECT().Verify(gomock.Any(), []byte("front"), "12.345.678-5").Return(models.Result{
		Status: models.StatusMatched, DetectedRUT: "123456785", Rotations: 1, Elapsed: 2 * time.Second,
	}, nil)
	s.sessions.EXPECT().Save(gomock.Any(), gomock.Any(), 10*time.Minute).Return(nil)

	session, err := s.service.Submit(s.ctx, s.submitRequest())
	s.Require().NoError(err)

	s.Equal(2, session.Attempts)
	s.Equal(3*time.Second, session.DetectionTime)
	s.Equal(loginAt, session.LoginAt)
	s.Require().True(session.Verified())
	s.True(session.Result.Matched())
	s.True(strings.HasPrefix(session.Result.FrontImageKey, "documents/sub-1/"))
	s.True(strings.HasSuffix(session.Result.FrontImageKey, "-front.jpg"))
	s.True(strings.HasSuffix(session.Result.BackImageKey, "-back.png"))
}

func (s *SessionServiceSuite) TestSubmitStartsSessionWhenNoneCached() {
	s.sessions.EXPECT().Get(gomock.Any(), "sess-1").Return(nil, sentinel.ErrNotFound)
	s.expectUploads()
	s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(models.Result{Status: models.StatusNotFound, Rotations: 4}, nil)
	s.sessions.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	session, err := s.service.Submit(s.ctx, s.submitRequest())
	s.Require().NoError(err)
	s.Equal(1, session.Attempts)
	s.Equal(models.StatusNotFound, session.Result.Status)
}

func (s *SessionServiceSuite) TestSubmitCountsRejectedUploads() {
	var cached *models.Session
	s.sessions.EXPECT().Get(gomock.Any(), "sess-1").DoAndReturn(
		func(context.Context, string) (*models.Session, error) {
			if cached == nil {
				return nil, sentinel.ErrNotFound
			}
			copied := *cached
			return &copied, nil
		}).Times(2)
	s.sessions.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, session *models.Session, _ time.Duration) error {
			copied := *session
			cached = &copied
			return nil
		}).Times(2)
	s.objects.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, key string, _ []byte, _ string) (string, error) { return key, nil }).Times(4)
	gomock.InOrder(
		s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(models.Result{}, models.ErrImageDecode),
		s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(models.Result{Status: models.StatusMatched, DetectedRUT: "123456785"}, nil),
	)

	_, err := s.service.Submit(s.ctx, s.submitRequest())
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidImage))
	s.Require().NotNil(cached)
	s.Equal(1, cached.Attempts)
	s.False(cached.Verified())

	session, err := s.service.Submit(s.ctx, s.submitRequest())
	s.Require().NoError(err)
	s.Equal(2, session.Attempts)
	s.True(session.Result.Matched())
}

func (s *SessionServiceSuite) TestSubmitVerifiesCroppedFront() {
	cropper := mocks.NewMockCropper(gomock.NewController(s.T()))
	svc := NewService(s.verifier, s.objects, s.sessions,
		WithCropper(cropper),
		WithServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.sessions.EXPECT().Get(gomock.Any(), "sess-1").Return(nil, sentinel.ErrNotFound)
	s.expectUploads()
	cropper.EXPECT().Crop(gomock.Any(), []byte("front")).Return([]byte("card"), nil)
	s.objects.EXPECT().Put(gomock.Any(), gomock.Any(), []byte("card"), "image/png").
		DoAndReturn(func(_ context.Context, key string, _ []byte, _ string) (string, error) { return key, nil })
	s.verifier.EXPECT().Verify(gomock.Any(), []byte("card"), "12.345.678-5").Return(models.Result{Status: models.StatusMatched}, nil)
	s.sessions.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	session, err := svc.Submit(s.ctx, s.submitRequest())
	s.Require().NoError(err)
	s.True(strings.HasSuffix(session.Result.CroppedKey, "-front-cropped.png"))
	s.True(strings.HasSuffix(session.Result.FrontImageKey, "-front.jpg"))
}

func (s *SessionServiceSuite) TestReverifyReadsCroppedFront() {
	s.sessions.EXPECT().Get(gomock.Any(), "sess-1").Return(&models.Session{
		ID: "sess-1", Subject: "sub-1", Attempts: 1,
		Result: &models.Result{
			Status:        models.StatusNotFound,
			FrontImageKey: "documents/sub-1/a-front.jpg",
			CroppedKey:    "documents/sub-1/a-front-cropped.png",
		},
	}, nil)
	s.objects.EXPECT().Get(gomock.Any(), "documents/sub-1/a-front-cropped.png").Return([]byte("card"), nil)
	s.verifier.EXPECT().Verify(gomock.Any(), []byte("card"), gomock.Any()).Return(models.Result{Status: models.StatusMatched}, nil)
	s.sessions.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	session, err := s.service.Reverify(s.ctx, "sess-1", "sub-1", "12.345.678-5")
	s.Require().NoError(err)
	s.Equal("documents/sub-1/a-front-cropped.png", session.Result.CroppedKey)
}

func (s *SessionServiceSuite) TestSubmitRequiresBothSides() {
	req := s.submitRequest()
	req.Back = Upload{}

	_, err := s.service.Submit(s.ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *SessionServiceSuite) TestSubmitTranslatesPipelineErrors() {
	cases := []struct {
		name string
		err  error
		code dErrors.Code
	}{
		{"undecodable image", models.ErrImageDecode, dErrors.CodeInvalidImage},
		{"engine missing", models.ErrOCREngineUnavailable, dErrors.CodeUnavailable},
		{"deadline", context.DeadlineExceeded, dErrors.CodeTimeout},
		{"unexpected", errors.New("boom"), dErrors.CodeInternal},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.SetupTest()
			s.sessions.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)
			s.objects.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("k", nil).AnyTimes()
			s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(models.Result{}, tc.err)
			s.sessions.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

			_, err := s.service.Submit(s.ctx, s.submitRequest())
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

func (s *SessionServiceSuite) TestSubmitRejectsForeignSession() {
	s.sessions.EXPECT().Get(gomock.Any(), "sess-1").Return(&models.Session{ID: "sess-1", Subject: "someone-else"}, nil)

	_, err := s.service.Submit(s.ctx, s.submitRequest())
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *SessionServiceSuite) TestReverifyUsesStoredFrontImage() {
	s.sessions.EXPECT().Get(gomock.Any(), "sess-1").Return(&models.Session{
		ID: "sess-1", Subject: "sub-1", Attempts: 1,
		Result: &models.Result{Status: models.StatusNotFound, FrontImageKey: "documents/sub-1/a-front.jpg", BackImageKey: "documents/sub-1/a-back.jpg"},
	}, nil)
	s.objects.EXPECT().Get(gomock.Any(), "documents/sub-1/a-front.jpg").Return([]byte("front"), nil)
	s.verifier.EXPECT().Verify(gomock.Any(), []byte("front"), "12.345.678-5").Return(models.Result{Status: models.StatusMatched, DetectedRUT: "123456785"}, nil)
	s.sessions.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	session, err := s.service.Reverify(s.ctx, "sess-1", "sub-1", "12.345.678-5")
	s.Require().NoError(err)
	s.Equal(2, session.Attempts)
	s.Equal("documents/sub-1/a-back.jpg", session.Result.BackImageKey)
	s.True(session.Result.Matched())
}

func (s *SessionServiceSuite) TestReverifyWithoutUpload() {
	s.sessions.EXPECT().Get(gomock.Any(), "sess-1").Return(&models.Session{ID: "sess-1", Subject: "sub-1"}, nil)

	_, err := s.service.Reverify(s.ctx, "sess-1", "sub-1", "12.345.678-5")
	s.True(dErrors.HasCode(err, dErrors.CodeVerificationRequired))
}

func (s *SessionServiceSuite) TestRequireVerified() {
	s.Run("missing session", func() {
		s.sessions.EXPECT().Get(gomock.Any(), "gone").Return(nil, sentinel.ErrNotFound)
		_, err := s.service.RequireVerified(s.ctx, "gone", "sub-1")
		s.True(dErrors.HasCode(err, dErrors.CodeVerificationRequired))
	})
	s.Run("session without result", func() {
		s.sessions.EXPECT().Get(gomock.Any(), "fresh").Return(&models.Session{ID: "fresh", Subject: "sub-1"}, nil)
		_, err := s.service.RequireVerified(s.ctx, "fresh", "sub-1")
		s.True(dErrors.HasCode(err, dErrors.CodeVerificationRequired))
	})
	s.Run("store down", func() {
		s.sessions.EXPECT().Get(gomock.Any(), "x").Return(nil, sentinel.ErrUnavailable)
		_, err := s.service.RequireVerified(s.ctx, "x", "sub-1")
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
	s.Run("verified", func() {
		s.sessions.EXPECT().Get(gomock.Any(), "ok").Return(&models.Session{
			ID: "ok", Subject: "sub-1", Result: &models.Result{Status: models.StatusMismatched},
		}, nil)
		session, err := s.service.RequireVerified(s.ctx, "ok", "sub-1")
		s.Require().NoError(err)
		s.Equal(models.StatusMismatched, session.Result.Status)
	})
}

func (s *SessionServiceSuite) TestBeginAndDiscard() {
	s.sessions.EXPECT().Save(gomock.Any(), gomock.Any(), 10*time.Minute).DoAndReturn(
		func(_ context.Context, session *models.Session, _ time.Duration) error {
			s.Equal("sub-1", session.Subject)
			s.Equal(s.now.Add(-time.Minute), session.LoginAt)
			s.Zero(session.Attempts)
			return nil
		})
	s.Require().NoError(s.service.Begin(s.ctx, "sess-1", "sub-1", s.now.Add(-time.Minute)))

	s.sessions.EXPECT().Delete(gomock.Any(), "sess-1").Return(sentinel.ErrNotFound)
	s.NoError(s.service.Discard(s.ctx, "sess-1"))
}

func (s *SessionServiceSuite) TestReverifyHonorsVerifyTimeout() {
	svc := NewService(s.verifier, s.objects, s.sessions,
		WithVerifyTimeout(time.Minute),
		WithServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.sessions.EXPECT().Get(gomock.Any(), "sess-1").Return(&models.Session{
		ID: "sess-1", Subject: "sub-1",
		Result: &models.Result{Status: models.StatusNotFound, FrontImageKey: "documents/sub-1/a-front.jpg"},
	}, nil)
	s.objects.EXPECT().Get(gomock.Any(), "documents/sub-1/a-front.jpg").Return([]byte("front"), nil)
	s.verifier.EXPECT().Verify(gomock.Any(), []byte("front"), "12.345.678-5").DoAndReturn(
		func(ctx context.Context, _ []byte, _ string) (models.Result, error) {
			deadline, ok := ctx.Deadline()
			s.Require().True(ok)
			s.WithinDuration(time.Now().Add(time.Minute), deadline, 5*time.Second)
			return models.Result{}, context.DeadlineExceeded
		})
	s.sessions.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	_, err := svc.Reverify(s.ctx, "sess-1", "sub-1", "12.345.678-5")
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
}
