package shelf

import "shelf-go/internal/model"

// Database provides metadata storage for the library.
// Lookups return (nil, nil) when the record does not exist.
// Multi-table writes are atomic.
type Database interface {
	// Course operations

	// CreateCourseTree stores a course with its modules and videos in one transaction.
	CreateCourseTree(course *model.Course, modules []*model.Module, videos []*model.Video) error

	FindCourse(id string) (*model.Course, error)

	// ListCourses returns all courses, most recently updated first.
	ListCourses() ([]*model.Course, error)

	UpdateCourse(course *model.Course) error

	// DeleteCourse removes a course with its modules, videos, progress and notes
	// in one transaction. It returns the blob keys the course referenced that
	// no remaining course or video references.
	DeleteCourse(id string) (orphanedBlobKeys []string, err error)

	// BlobKeyReferenced reports whether any course cover or video poster uses key.
	BlobKeyReferenced(key string) (bool, error)

	// Module operations

	// FindModulesByCourse returns a course's modules in order.
	FindModulesByCourse(courseID string) ([]*model.Module, error)

	// Video operations

	FindVideo(id string) (*model.Video, error)

	// FindVideosByCourse returns a course's videos ordered by module order,
	// root-level videos last, then by video order.
	FindVideosByCourse(courseID string) ([]*model.Video, error)

	UpdateVideo(video *model.Video) error

	// UpdateVideos updates several videos in one transaction.
	UpdateVideos(videos []*model.Video) error

	// Progress operations

	FindProgress(videoID string) (*model.Progress, error)
	FindProgressByCourse(courseID string) ([]*model.Progress, error)
	PutProgress(progress *model.Progress) error
	DeleteProgress(videoID string) error

	// Note operations

	FindNote(videoID string) (*model.Note, error)
	PutNote(note *model.Note) error

	// Settings operations

	// GetSettings returns the stored settings, or nil when none were saved.
	GetSettings() (*model.Settings, error)
	PutSettings(settings *model.Settings) error

	// Operation log

	CreateOperation(operation string, parameters string) (*model.Operation, error)
	FinishOperation(id int64, status string) error

	// ListOperations returns the most recent operations, newest first.
	ListOperations(limit int) ([]*model.Operation, error)

	Close() error
}
