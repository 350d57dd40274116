package course

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mycourse/core"
)

type (
	Repository interface {
		// QueryCourses returns the non-deleted courses matching filter and their total count.
		QueryCourses(ctx context.Context, filter QueryFilter) ([]Course, int, error)
		GetCourse(ctx context.Context, id int64, withLessons bool) (Course, error)
		CreateCourse(ctx context.Context, c Course) (Course, error)
		// UpdateCourse returns ErrOptimisticConcurrency when c.RowVersion is stale.
		UpdateCourse(ctx context.Context, c Course) (Course, error)
		DeleteCourse(ctx context.Context, id int64) error
		// IsTitleAvailable ignores case and the course identified by excludeID.
		IsTitleAvailable(ctx context.Context, title string, excludeID int64) (bool, error)
		GetCourseAuthorID(ctx context.Context, id int64) (string, error)
		CountCoursesByAuthor(ctx context.Context, authorID string) (int, error)

		GetLesson(ctx context.Context, id int64) (Lesson, error)
		CreateLesson(ctx context.Context, l Lesson) (Lesson, error)
		// UpdateLesson returns ErrOptimisticConcurrency when l.RowVersion is stale.
		UpdateLesson(ctx context.Context, l Lesson) (Lesson, error)
		DeleteLesson(ctx context.Context, id int64) error

		IsSubscribed(ctx context.Context, courseID int64, userID string) (bool, error)
		// CreateSubscription returns ErrAlreadySubscribed on duplicates.
		CreateSubscription(ctx context.Context, s Subscription) error
		// GetVote returns ErrNotSubscribed when there is no subscription.
		GetVote(ctx context.Context, courseID int64, userID string) (*int, error)
		// SetVote saves the vote and recomputes the course rating.
		SetVote(ctx context.Context, courseID int64, userID string, vote int) error
	}

	ServiceInterface interface {
		GetCourses(ctx context.Context, in ListInput) (CourseList, error)
		GetBestRatingCourses(ctx context.Context) ([]CourseView, error)
		GetMostRecentCourses(ctx context.Context) ([]CourseView, error)
		GetCourse(ctx context.Context, id int64) (CourseDetail, error)
		GetCoursesByAuthor(ctx context.Context, authorID string) ([]CourseView, error)
		GetCourseForEditing(ctx context.Context, id int64) (EditInput, error)
		CreateCourse(ctx context.Context, in CreateInput) (CourseDetail, error)
		EditCourse(ctx context.Context, in EditInput) (CourseDetail, error)
		DeleteCourse(ctx context.Context, in DeleteInput) error
		IsTitleAvailable(ctx context.Context, title string, excludeID int64) (bool, error)
		GetCourseAuthorID(ctx context.Context, id int64) (string, error)
		GetCourseCountByAuthorID(ctx context.Context, authorID string) (int, error)
		IsCourseSubscribed(ctx context.Context, courseID int64, userID string) (bool, error)
		GetPaymentURL(ctx context.Context, courseID int64, userID, returnURL, cancelURL string) (string, error)
		CapturePayment(ctx context.Context, courseID int64, userID, token string) (SubscribeInput, error)
		SubscribeCourse(ctx context.Context, in SubscribeInput) error
		GetCourseVote(ctx context.Context, courseID int64, userID string) (VoteView, error)
		VoteCourse(ctx context.Context, in VoteInput) error
		SendQuestionToCourseAuthor(ctx context.Context, in QuestionInput) error
	}

	// ImagePersister stores course images. save receives the public path of the image,
	// and the image is kept only when save succeeds.
	ImagePersister interface {
		SaveCourseImage(ctx context.Context, courseID int64, r io.Reader, save func(path string) error) error
	}

	PaymentGateway interface {
		GetPaymentURL(ctx context.Context, in PayInput) (string, error)
		CapturePayment(ctx context.Context, token string) (SubscribeInput, error)
	}

	TransactionLogger interface {
		LogTransaction(ctx context.Context, in SubscribeInput) error
	}

	Deps struct {
		Repo     Repository
		Images   ImagePersister
		Payments PaymentGateway
		TxLogger TransactionLogger
		MailSvc  core.EmailService
		Logger   core.Logger
	}

	Service struct {
		conf     *core.Config
		repo     Repository
		images   ImagePersister
		payments PaymentGateway
		txLogger TransactionLogger
		mailSvc  core.EmailService
		logger   core.Logger
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(conf *core.Config, deps Deps) *Service {
	return &Service{
		conf:     conf,
		repo:     deps.Repo,
		images:   deps.Images,
		payments: deps.Payments,
		txLogger: deps.TxLogger,
		mailSvc:  deps.MailSvc,
		logger:   deps.Logger,
	}
}

func (svc *Service) notFound(id int64, err error) error {
	if errors.Cause(err) == ErrNotFound {
		svc.logger.Warn(fmt.Sprintf("course %d not found", id))
		return ErrNotFound
	}
	return err
}

func (svc *Service) GetCourses(ctx context.Context, in ListInput) (CourseList, error) {
	in.Sanitize(svc.conf.Courses())
	courses, total, err := svc.repo.QueryCourses(ctx, QueryFilter{
		Search:        in.Search,
		PublishedOnly: true,
		OrderBy:       in.OrderBy,
		Ascending:     in.Ascending,
		Limit:         in.Limit,
		Offset:        in.Offset,
	})
	if err != nil {
		return CourseList{}, errors.Wrap(err, "querying courses")
	}
	return CourseList{Courses: NewCourseViews(courses), TotalCount: total}, nil
}

func (svc *Service) GetBestRatingCourses(ctx context.Context) ([]CourseView, error) {
	return svc.homeCourses(ctx, "rating")
}

func (svc *Service) GetMostRecentCourses(ctx context.Context) ([]CourseView, error) {
	return svc.homeCourses(ctx, "id")
}

func (svc *Service) homeCourses(ctx context.Context, orderBy string) ([]CourseView, error) {
	courses, _, err := svc.repo.QueryCourses(ctx, QueryFilter{
		PublishedOnly: true,
		OrderBy:       orderBy,
		Limit:         svc.conf.Courses().InHome,
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying home courses")
	}
	return NewCourseViews(courses), nil
}

func (svc *Service) GetCourse(ctx context.Context, id int64) (CourseDetail, error) {
	c, err := svc.repo.GetCourse(ctx, id, true /* withLessons */)
	if err != nil {
		return CourseDetail{}, svc.notFound(id, err)
	}
	return NewCourseDetail(c), nil
}

func (svc *Service) GetCoursesByAuthor(ctx context.Context, authorID string) ([]CourseView, error) {
	courses, _, err := svc.repo.QueryCourses(ctx, QueryFilter{AuthorID: authorID, OrderBy: "title", Ascending: true})
	if err != nil {
		return nil, errors.Wrap(err, "querying author courses")
	}
	return NewCourseViews(courses), nil
}

func (svc *Service) GetCourseForEditing(ctx context.Context, id int64) (EditInput, error) {
	c, err := svc.repo.GetCourse(ctx, id, false /* withLessons */)
	if err != nil {
		return EditInput{}, svc.notFound(id, err)
	}
	return NewEditInput(c), nil
}

func (svc *Service) CreateCourse(ctx context.Context, in CreateInput) (CourseDetail, error) {
	available, err := svc.repo.IsTitleAvailable(ctx, in.Title, 0)
	if err != nil {
		return CourseDetail{}, errors.Wrap(err, "checking title")
	}
	if !available {
		return CourseDetail{}, titleUnavailableError()
	}

	c, err := svc.repo.CreateCourse(ctx, Course{
		Title:        in.Title,
		ImagePath:    DefaultImagePath,
		Author:       in.Author,
		AuthorID:     in.AuthorID,
		Email:        in.Email,
		FullPrice:    core.NewMoney(0, "EUR"),
		CurrentPrice: core.NewMoney(0, "EUR"),
		Status:       StatusDraft,
	})
	if err != nil {
		if errors.Cause(err) == ErrTitleUnavailable {
			return CourseDetail{}, titleUnavailableError()
		}
		return CourseDetail{}, errors.Wrap(err, "creating course")
	}
	return NewCourseDetail(c), nil
}

func (svc *Service) EditCourse(ctx context.Context, in EditInput) (CourseDetail, error) {
	available, err := svc.repo.IsTitleAvailable(ctx, in.Title, in.ID)
	if err != nil {
		return CourseDetail{}, errors.Wrap(err, "checking title")
	}
	if !available {
		return CourseDetail{}, titleUnavailableError()
	}

	c, err := svc.repo.GetCourse(ctx, in.ID, false /* withLessons */)
	if err != nil {
		return CourseDetail{}, svc.notFound(in.ID, err)
	}
	c.Title = in.Title
	c.Description = in.Description
	c.Email = in.Email
	c.FullPrice = in.FullPrice
	c.CurrentPrice = in.CurrentPrice
	c.Status = in.Status
	c.RowVersion = in.RowVersion

	if in.Image != nil {
		err = svc.images.SaveCourseImage(ctx, c.ID, in.Image, func(path string) error {
			c.ImagePath = path
			return svc.updateCourse(ctx, c)
		})
		if errors.Is(err, ErrImageInvalid) {
			return CourseDetail{}, imageInvalidError()
		}
	} else {
		err = svc.updateCourse(ctx, c)
	}
	if err != nil {
		return CourseDetail{}, err
	}
	return svc.GetCourse(ctx, in.ID)
}

func (svc *Service) updateCourse(ctx context.Context, c Course) error {
	if _, err := svc.repo.UpdateCourse(ctx, c); err != nil {
		switch errors.Cause(err) {
		case ErrTitleUnavailable:
			return titleUnavailableError()
		case ErrNotFound:
			return svc.notFound(c.ID, err)
		case ErrOptimisticConcurrency:
			return ErrOptimisticConcurrency
		}
		return errors.Wrap(err, "updating course")
	}
	return nil
}

func (svc *Service) DeleteCourse(ctx context.Context, in DeleteInput) error {
	if err := svc.repo.DeleteCourse(ctx, in.ID); err != nil {
		return svc.notFound(in.ID, err)
	}
	return nil
}

func (svc *Service) IsTitleAvailable(ctx context.Context, title string, excludeID int64) (bool, error) {
	return svc.repo.IsTitleAvailable(ctx, core.CleanString(title), excludeID)
}

func (svc *Service) GetCourseAuthorID(ctx context.Context, id int64) (string, error) {
	authorID, err := svc.repo.GetCourseAuthorID(ctx, id)
	if err != nil {
		return "", svc.notFound(id, err)
	}
	return authorID, nil
}

func (svc *Service) GetCourseCountByAuthorID(ctx context.Context, authorID string) (int, error) {
	return svc.repo.CountCoursesByAuthor(ctx, authorID)
}

func (svc *Service) IsCourseSubscribed(ctx context.Context, courseID int64, userID string) (bool, error) {
	return svc.repo.IsSubscribed(ctx, courseID, userID)
}

func (svc *Service) GetPaymentURL(ctx context.Context, courseID int64, userID, returnURL, cancelURL string) (string, error) {
	subscribed, err := svc.repo.IsSubscribed(ctx, courseID, userID)
	if err != nil {
		return "", errors.Wrap(err, "checking subscription")
	}
	if subscribed {
		return "", ErrAlreadySubscribed
	}

	c, err := svc.repo.GetCourse(ctx, courseID, false /* withLessons */)
	if err != nil {
		return "", svc.notFound(courseID, err)
	}
	return svc.payments.GetPaymentURL(ctx, PayInput{
		CourseID:    c.ID,
		UserID:      userID,
		Description: c.Title,
		Price:       c.CurrentPrice,
		ReturnURL:   returnURL,
		CancelURL:   cancelURL,
	})
}

func (svc *Service) CapturePayment(ctx context.Context, courseID int64, userID, token string) (SubscribeInput, error) {
	in, err := svc.payments.CapturePayment(ctx, token)
	if err != nil {
		return SubscribeInput{}, err
	}
	if in.CourseID != courseID || in.UserID != userID {
		return SubscribeInput{}, core.NewValidationError(ErrPaymentMismatch)
	}
	return in, nil
}

func (svc *Service) SubscribeCourse(ctx context.Context, in SubscribeInput) error {
	if in.PaymentDate.IsZero() {
		in.PaymentDate = time.Now().UTC()
	}
	err := svc.repo.CreateSubscription(ctx, Subscription{
		CourseID:      in.CourseID,
		UserID:        in.UserID,
		PaymentDate:   in.PaymentDate.UTC(),
		PaymentType:   in.PaymentType,
		Paid:          in.Paid,
		TransactionID: in.TransactionID,
	})
	if err != nil {
		if errors.Cause(err) == ErrAlreadySubscribed {
			return ErrAlreadySubscribed
		}
		return errors.Wrap(err, "creating subscription")
	}

	if err = svc.txLogger.LogTransaction(ctx, in); err != nil {
		// the subscription is saved, the log is best effort
		svc.logger.Error(fmt.Sprintf("logging transaction %s: %v", in.TransactionID, err), err)
	}
	return nil
}

func (svc *Service) GetCourseVote(ctx context.Context, courseID int64, userID string) (VoteView, error) {
	vote, err := svc.repo.GetVote(ctx, courseID, userID)
	if err != nil {
		return VoteView{}, err
	}
	return VoteView{Vote: vote}, nil
}

func (svc *Service) VoteCourse(ctx context.Context, in VoteInput) error {
	return svc.repo.SetVote(ctx, in.ID, in.UserID, in.Vote)
}

func (svc *Service) SendQuestionToCourseAuthor(ctx context.Context, in QuestionInput) error {
	c, err := svc.repo.GetCourse(ctx, in.CourseID, false /* withLessons */)
	if err != nil {
		return svc.notFound(in.CourseID, err)
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: c.Author, Address: c.Email}},
		ReplyTo:      &mail.Address{Name: in.UserName, Address: in.UserEmail},
		Subject:      fmt.Sprintf("Question about %s", c.Title),
		TemplateName: "course_question",
		TemplateData: map[string]interface{}{
			"AuthorName":  c.Author,
			"UserName":    in.UserName,
			"UserEmail":   in.UserEmail,
			"CourseTitle": c.Title,
			"Question":    in.Question,
		},
	}
	if err = svc.mailSvc.Send(ctx, msg); err != nil {
		if core.IsSendError(err) {
			return err
		}
		return core.NewSendError(err)
	}
	return nil
}
