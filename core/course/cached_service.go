package course

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/trezcool/mycourse/core"
)

const (
	bestRatingKey = "BestRatingCourses"
	mostRecentKey = "MostRecentCourses"
)

func courseKey(id int64) string { return fmt.Sprintf("Course%d", id) }
func lessonKey(id int64) string { return fmt.Sprintf("Lesson%d", id) }

func coursesKey(in ListInput) string {
	return fmt.Sprintf("Courses%s-%d-%s-%t", in.Search, in.Page, in.OrderBy, in.Ascending)
}

// cacheAside reads key from c, or loads it once for all concurrent callers and stores it for ttl.
// The load is shared, so it does not stop when the caller that started it goes away.
// Cache failures are logged and never fail the read.
func cacheAside[T any](
	ctx context.Context,
	c core.Cache,
	group *singleflight.Group,
	logger core.Logger,
	key string,
	ttl time.Duration,
	load func(ctx context.Context) (T, error),
) (T, error) {
	var cached T
	found, err := c.Get(ctx, key, &cached)
	if err != nil {
		logger.Warn(fmt.Sprintf("reading cache key %s: %v", key, err), err)
	} else if found {
		return cached, nil
	}

	ctx = context.WithoutCancel(ctx)
	val, err, _ := group.Do(key, func() (interface{}, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(ctx, key, v, ttl); err != nil {
			logger.Warn(fmt.Sprintf("writing cache key %s: %v", key, err), err)
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return val.(T), nil
}

func invalidate(ctx context.Context, c core.Cache, logger core.Logger, keys ...string) {
	if err := c.Delete(ctx, keys...); err != nil {
		logger.Warn(fmt.Sprintf("deleting cache keys %v: %v", keys, err), err)
	}
}

// CachedService decorates a ServiceInterface with a cache-aside layer.
// Lists are not invalidated on changes and expire with their ttl.
type CachedService struct {
	ServiceInterface
	conf   *core.Config
	cache  core.Cache
	logger core.Logger
	group  singleflight.Group
}

var _ ServiceInterface = (*CachedService)(nil)

func NewCachedService(conf *core.Config, svc ServiceInterface, cache core.Cache, logger core.Logger) *CachedService {
	return &CachedService{ServiceInterface: svc, conf: conf, cache: cache, logger: logger}
}

func (cs *CachedService) ttl() time.Duration { return cs.conf.Courses().CacheDuration }

func (cs *CachedService) GetCourses(ctx context.Context, in ListInput) (CourseList, error) {
	opts := cs.conf.Courses()
	in.Sanitize(opts)
	if in.Page > opts.CachedPages || in.Search != "" {
		return cs.ServiceInterface.GetCourses(ctx, in)
	}
	return cacheAside(ctx, cs.cache, &cs.group, cs.logger, coursesKey(in), opts.CacheDuration,
		func(ctx context.Context) (CourseList, error) { return cs.ServiceInterface.GetCourses(ctx, in) })
}

func (cs *CachedService) GetBestRatingCourses(ctx context.Context) ([]CourseView, error) {
	return cacheAside(ctx, cs.cache, &cs.group, cs.logger, bestRatingKey, cs.ttl(), cs.ServiceInterface.GetBestRatingCourses)
}

func (cs *CachedService) GetMostRecentCourses(ctx context.Context) ([]CourseView, error) {
	return cacheAside(ctx, cs.cache, &cs.group, cs.logger, mostRecentKey, cs.ttl(), cs.ServiceInterface.GetMostRecentCourses)
}

func (cs *CachedService) GetCourse(ctx context.Context, id int64) (CourseDetail, error) {
	return cacheAside(ctx, cs.cache, &cs.group, cs.logger, courseKey(id), cs.ttl(),
		func(ctx context.Context) (CourseDetail, error) { return cs.ServiceInterface.GetCourse(ctx, id) })
}

func (cs *CachedService) EditCourse(ctx context.Context, in EditInput) (CourseDetail, error) {
	detail, err := cs.ServiceInterface.EditCourse(ctx, in)
	if err != nil {
		return CourseDetail{}, err
	}
	invalidate(ctx, cs.cache, cs.logger, courseKey(in.ID))
	return detail, nil
}

func (cs *CachedService) DeleteCourse(ctx context.Context, in DeleteInput) error {
	if err := cs.ServiceInterface.DeleteCourse(ctx, in); err != nil {
		return err
	}
	invalidate(ctx, cs.cache, cs.logger, courseKey(in.ID))
	return nil
}

// VoteCourse drops the cached detail of the course, its rating changed.
func (cs *CachedService) VoteCourse(ctx context.Context, in VoteInput) error {
	if err := cs.ServiceInterface.VoteCourse(ctx, in); err != nil {
		return err
	}
	invalidate(ctx, cs.cache, cs.logger, courseKey(in.ID))
	return nil
}

// CachedLessonService decorates a LessonServiceInterface with a cache-aside layer.
// Lesson changes also drop the cached detail of their course.
type CachedLessonService struct {
	LessonServiceInterface
	conf   *core.Config
	cache  core.Cache
	logger core.Logger
	group  singleflight.Group
}

var _ LessonServiceInterface = (*CachedLessonService)(nil)

func NewCachedLessonService(conf *core.Config, svc LessonServiceInterface, cache core.Cache, logger core.Logger) *CachedLessonService {
	return &CachedLessonService{LessonServiceInterface: svc, conf: conf, cache: cache, logger: logger}
}

func (cs *CachedLessonService) GetLesson(ctx context.Context, id int64) (LessonDetail, error) {
	return cacheAside(ctx, cs.cache, &cs.group, cs.logger, lessonKey(id), cs.conf.Courses().CacheDuration,
		func(ctx context.Context) (LessonDetail, error) { return cs.LessonServiceInterface.GetLesson(ctx, id) })
}

func (cs *CachedLessonService) CreateLesson(ctx context.Context, in LessonCreateInput) (LessonDetail, error) {
	detail, err := cs.LessonServiceInterface.CreateLesson(ctx, in)
	if err != nil {
		return LessonDetail{}, err
	}
	invalidate(ctx, cs.cache, cs.logger, courseKey(in.CourseID))
	return detail, nil
}

func (cs *CachedLessonService) EditLesson(ctx context.Context, in LessonEditInput) (LessonDetail, error) {
	detail, err := cs.LessonServiceInterface.EditLesson(ctx, in)
	if err != nil {
		return LessonDetail{}, err
	}
	invalidate(ctx, cs.cache, cs.logger, lessonKey(in.ID), courseKey(detail.CourseID))
	return detail, nil
}

func (cs *CachedLessonService) DeleteLesson(ctx context.Context, in LessonDeleteInput) error {
	if err := cs.LessonServiceInterface.DeleteLesson(ctx, in); err != nil {
		return err
	}
	invalidate(ctx, cs.cache, cs.logger, lessonKey(in.ID), courseKey(in.CourseID))
	return nil
}
