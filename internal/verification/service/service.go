package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"evoto/internal/verification/models"
	dErrors "evoto/pkg/domain-errors"
	"evoto/pkg/platform/sentinel"
)

// DefaultSessionTTL bounds how long an upload stays valid for a vote commit.
const DefaultSessionTTL = 30 * time.Minute

// Upload is one document image as received from the client.
type Upload struct {
	Data        []byte
	ContentType string
}

// SubmitRequest carries both document sides plus the identity they are checked against.
type SubmitRequest struct {
	SessionID  string
	Subject    string
	ClaimedRUT string
	Front      Upload
	Back       Upload
}

// Service owns the verification session: it stores uploads, runs the pipeline
// and caches the latest result until the vote is committed.
type Service struct {
	verifier Verifier
	cropper  Cropper
	objects  ObjectStore
	sessions SessionStore
	ttl      time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithVerifyTimeout bounds each pipeline run. Zero leaves the request deadline in charge.
func WithVerifyTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithCropper cuts the card out of the front photo before verification. The
// cropped image is stored next to the originals.
func WithCropper(c Cropper) Option {
	return func(s *Service) { s.cropper = c }
}

func WithServiceLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithServiceClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(verifier Verifier, objects ObjectStore, sessions SessionStore, opts ...Option) *Service {
	s := &Service{
		verifier: verifier,
		objects:  objects,
		sessions: sessions,
		ttl:      DefaultSessionTTL,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin opens a verification session at login time.
func (s *Service) Begin(ctx context.Context, sessionID, subject string, loginAt time.Time) error {
	if sessionID == "" || subject == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "session is required")
	}
	session := &models.Session{
		ID:        sessionID,
		Subject:   subject,
		LoginAt:   loginAt,
		UpdatedAt: s.now(),
	}
	if err := s.sessions.Save(ctx, session, s.ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "could not open verification session")
	}
	return nil
}

// Submit stores both document sides and verifies the front one. The stored
// result replaces any earlier one for the same session.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.Session, error) {
	if req.SessionID == "" || req.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "session is required")
	}
	if len(req.Front.Data) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "file_front is required")
	}
	if len(req.Back.Data) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "file_back is required")
	}

	session, err := s.load(ctx, req.SessionID, req.Subject)
	if err != nil {
		return nil, err
	}
	// Every upload counts, including the ones the pipeline rejects.
	session.Attempts++

	var (
		result                        models.Result
		frontKey, backKey, croppedKey string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		frontKey, err = s.objects.Put(gctx, objectKey(req.Subject, "front", req.Front.ContentType), req.Front.Data, req.Front.ContentType)
		return storeErr(err)
	})
	g.Go(func() error {
		var err error
		backKey, err = s.objects.Put(gctx, objectKey(req.Subject, "back", req.Back.ContentType), req.Back.Data, req.Back.ContentType)
		return storeErr(err)
	})
	g.Go(func() error {
		vctx, cancel := s.deadline(gctx)
		defer cancel()

		image, key, err := s.crop(vctx, req.Subject, req.Front.Data)
		if err != nil {
			return err
		}
		croppedKey = key
		result, err = s.verifier.Verify(vctx, image, req.ClaimedRUT)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, s.fail(ctx, session, err)
	}

	result.FrontImageKey = frontKey
	result.BackImageKey = backKey
	result.CroppedKey = croppedKey
	return s.record(ctx, session, result)
}

// Reverify runs the pipeline again over the front image already stored for the session.
func (s *Service) Reverify(ctx context.Context, sessionID, subject, claimedRUT string) (*models.Session, error) {
	session, err := s.load(ctx, sessionID, subject)
	if err != nil {
		return nil, err
	}
	if !session.Verified() || session.Result.FrontImageKey == "" {
		return nil, dErrors.New(dErrors.CodeVerificationRequired, "no document has been uploaded")
	}

	key := session.Result.FrontImageKey
	if session.Result.CroppedKey != "" {
		key = session.Result.CroppedKey
	}
	front, err := s.objects.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeVerificationRequired, "stored document is no longer available")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not read stored document")
	}
	session.Attempts++
	result, err := s.verify(ctx, front, claimedRUT)
	if err != nil {
		return nil, s.fail(ctx, session, err)
	}
	result.FrontImageKey = session.Result.FrontImageKey
	result.BackImageKey = session.Result.BackImageKey
	result.CroppedKey = session.Result.CroppedKey
	return s.record(ctx, session, result)
}

// RequireVerified returns the session only if it carries a verification result
// owned by subject.
func (s *Service) RequireVerified(ctx context.Context, sessionID, subject string) (*models.Session, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeVerificationRequired, "upload your identity document first")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not read verification session")
	}
	if session.Subject != subject {
		return nil, dErrors.New(dErrors.CodeForbidden, "verification session belongs to another user")
	}
	if !session.Verified() {
		return nil, dErrors.New(dErrors.CodeVerificationRequired, "upload your identity document first")
	}
	return session, nil
}

// Discard drops the session once its result has been committed.
func (s *Service) Discard(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return fmt.Errorf("discard verification session: %w", err)
	}
	return nil
}

func (s *Service) verify(ctx context.Context, image []byte, claimedRUT string) (models.Result, error) {
	ctx, cancel := s.deadline(ctx)
	defer cancel()
	return s.verifier.Verify(ctx, image, claimedRUT)
}

// deadline bounds one pipeline run. Without a timeout the request deadline applies.
func (s *Service) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// crop returns the image to verify and, when a Cropper is set, the key the
// cropped card was stored under.
func (s *Service) crop(ctx context.Context, subject string, front []byte) ([]byte, string, error) {
	if s.cropper == nil {
		return front, "", nil
	}
	cropped, err := s.cropper.Crop(ctx, front)
	if err != nil {
		return nil, "", err
	}
	key, err := s.objects.Put(ctx, objectKey(subject, "front-cropped", "image/png"), cropped, "image/png")
	if err != nil {
		return nil, "", storeErr(err)
	}
	return cropped, key, nil
}

// load returns the caller's session, starting a fresh one when none is cached.
func (s *Service) load(ctx context.Context, sessionID, subject string) (*models.Session, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return &models.Session{ID: sessionID, Subject: subject}, nil
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not read verification session")
	case session.Subject != subject:
		return nil, dErrors.New(dErrors.CodeForbidden, "verification session belongs to another user")
	}
	return session, nil
}

func (s *Service) record(ctx context.Context, session *models.Session, result models.Result) (*models.Session, error) {
	session.DetectionTime += result.Elapsed
	session.Result = &result
	session.UpdatedAt = s.now()
	if err := s.sessions.Save(ctx, session, s.ttl); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not save verification result")
	}
	return session, nil
}

// fail keeps the attempt count of a rejected upload, then translates err.
// The previous result, if any, stays in place.
func (s *Service) fail(ctx context.Context, session *models.Session, err error) error {
	session.UpdatedAt = s.now()
	if saveErr := s.sessions.Save(ctx, session, s.ttl); saveErr != nil {
		s.logger.WarnContext(ctx, "failed to count verification attempt",
			"session_id", session.ID,
			"attempts", session.Attempts,
			"error", saveErr,
		)
	}
	return s.translate(ctx, err)
}

func (s *Service) translate(ctx context.Context, err error) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, models.ErrImageDecode):
		return dErrors.Wrap(err, dErrors.CodeInvalidImage, "the document image could not be read, please upload a clearer photo")
	case errors.Is(err, models.ErrOCREngineUnavailable):
		s.logger.ErrorContext(ctx, "ocr engine unavailable", "error", err)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "document verification is temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "document verification timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "document verification failed")
}

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "could not store document image")
}

func objectKey(subject, side, contentType string) string {
	return path.Join("documents", subject, uuid.NewString()+"-"+side+extension(contentType))
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	}
	return ".bin"
}
