package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/sma-entry-sync/internal/models"
)

// Collection names used on the MongoDB sync target.
const (
	MongoAttendanceCollection = "attendance"
	MongoGradesCollection     = "grades"
)

// MongoAttendanceRepository is the MongoDB sync target for attendance.
type MongoAttendanceRepository struct {
	col      *mongo.Collection
	validate *validator.Validate
}

// NewMongoAttendanceRepository binds the repository to db.
func NewMongoAttendanceRepository(db *mongo.Database, validate *validator.Validate) *MongoAttendanceRepository {
	if validate == nil {
		validate = validator.New()
	}
	return &MongoAttendanceRepository{col: db.Collection(MongoAttendanceCollection), validate: validate}
}

// EnsureIndexes creates the unique business-key index.
func (r *MongoAttendanceRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "student_id", Value: 1}, {Key: "course_id", Value: 1}, {Key: "session_date", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create attendance index: %w", err)
	}
	return nil
}

// BatchUpsert writes all records in one unordered bulk write. Existing
// documents keep their id.
func (r *MongoAttendanceRepository) BatchUpsert(ctx context.Context, records []models.AttendanceRecord) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	if err := validateItems(r.validate, records); err != nil {
		return nil, err
	}

	writes := make([]mongo.WriteModel, 0, len(records))
	keys := make([]bson.M, 0, len(records))
	for _, rec := range records {
		filter := bson.M{"student_id": rec.StudentID, "course_id": rec.CourseID, "session_date": rec.SessionDate}
		update := bson.M{
			"$set": bson.M{
				"status":      rec.Status,
				"notes":       rec.Notes,
				"recorded_by": rec.RecordedBy,
				"recorded_at": rec.RecordedAt,
			},
			"$setOnInsert": bson.M{"id": rec.ID},
		}
		writes = append(writes, mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true))
		keys = append(keys, filter)
	}
	if _, err := r.col.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return nil, fmt.Errorf("bulk upsert attendance: %w", err)
	}

	var stored []models.AttendanceRecord
	if err := findAll(ctx, r.col, bson.M{"$or": keys}, &stored); err != nil {
		return nil, fmt.Errorf("read back attendance ids: %w", err)
	}
	return idsInOrder(records, stored, func(a models.AttendanceRecord) string { return a.ID }), nil
}

// ListBySession returns the stored rows for one course session.
func (r *MongoAttendanceRepository) ListBySession(ctx context.Context, courseID, sessionDate string) ([]models.AttendanceRecord, error) {
	var rows []models.AttendanceRecord
	if err := findAll(ctx, r.col, bson.M{"course_id": courseID, "session_date": sessionDate}, &rows); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return checkRows(rows)
}

// ListRange returns rows for a course between two dates inclusive. Dates are
// stored as YYYY-MM-DD strings so lexical comparison orders them.
func (r *MongoAttendanceRepository) ListRange(ctx context.Context, courseID, from, to string) ([]models.AttendanceRecord, error) {
	filter := bson.M{"course_id": courseID}
	bounds := bson.M{}
	if from != "" {
		bounds["$gte"] = from
	}
	if to != "" {
		bounds["$lte"] = to
	}
	if len(bounds) > 0 {
		filter["session_date"] = bounds
	}
	var rows []models.AttendanceRecord
	if err := findAll(ctx, r.col, filter, &rows); err != nil {
		return nil, fmt.Errorf("list attendance range: %w", err)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SessionDate != rows[j].SessionDate {
			return rows[i].SessionDate < rows[j].SessionDate
		}
		return rows[i].StudentID < rows[j].StudentID
	})
	return checkRows(rows)
}

// Stats tallies every attendance row of a course by status.
func (r *MongoAttendanceRepository) Stats(ctx context.Context, courseID string) (*models.AttendanceStats, error) {
	rows, err := r.ListRange(ctx, courseID, "", "")
	if err != nil {
		return nil, err
	}
	var stats models.AttendanceStats
	for _, row := range rows {
		stats.Add(row.Status)
	}
	return &stats, nil
}

// DailyReport groups a course's rows by session date and status.
func (r *MongoAttendanceRepository) DailyReport(ctx context.Context, courseID, from, to string) (models.DailyAttendanceReport, error) {
	rows, err := r.ListRange(ctx, courseID, from, to)
	if err != nil {
		return nil, err
	}
	report := make(models.DailyAttendanceReport)
	for _, row := range rows {
		day := report[row.SessionDate]
		day.Add(row.Status)
		report[row.SessionDate] = day
	}
	return report, nil
}

// History lists a student's sessions in a course, newest first.
func (r *MongoAttendanceRepository) History(ctx context.Context, courseID, studentID string) ([]models.AttendanceHistoryRow, error) {
	rows, err := r.ListRange(ctx, courseID, "", "")
	if err != nil {
		return nil, err
	}
	history := make([]models.AttendanceHistoryRow, 0)
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].StudentID != studentID {
			continue
		}
		history = append(history, models.AttendanceHistoryRow{SessionDate: rows[i].SessionDate, Status: rows[i].Status, Notes: rows[i].Notes})
	}
	return history, nil
}

// MongoGradeRepository is the MongoDB sync target for grades.
type MongoGradeRepository struct {
	col      *mongo.Collection
	validate *validator.Validate
}

// NewMongoGradeRepository binds the repository to db.
func NewMongoGradeRepository(db *mongo.Database, validate *validator.Validate) *MongoGradeRepository {
	if validate == nil {
		validate = validator.New()
	}
	return &MongoGradeRepository{col: db.Collection(MongoGradesCollection), validate: validate}
}

// EnsureIndexes creates the unique business-key index.
func (r *MongoGradeRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "student_id", Value: 1}, {Key: "course_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create grades index: %w", err)
	}
	return nil
}

// BatchUpsert writes all grades in one unordered bulk write.
func (r *MongoGradeRepository) BatchUpsert(ctx context.Context, grades []models.GradeRecord) ([]string, error) {
	if len(grades) == 0 {
		return nil, nil
	}
	if err := validateItems(r.validate, grades); err != nil {
		return nil, err
	}

	writes := make([]mongo.WriteModel, 0, len(grades))
	keys := make([]bson.M, 0, len(grades))
	for _, g := range grades {
		filter := bson.M{"student_id": g.StudentID, "course_id": g.CourseID}
		update := bson.M{
			"$set": bson.M{
				"score":     g.Score,
				"feedback":  g.Feedback,
				"graded_by": g.GradedBy,
				"graded_at": g.GradedAt,
			},
			"$setOnInsert": bson.M{"id": g.ID},
		}
		writes = append(writes, mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true))
		keys = append(keys, filter)
	}
	if _, err := r.col.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return nil, fmt.Errorf("bulk upsert grades: %w", err)
	}

	var stored []models.GradeRecord
	if err := findAll(ctx, r.col, bson.M{"$or": keys}, &stored); err != nil {
		return nil, fmt.Errorf("read back grade ids: %w", err)
	}
	return idsInOrder(grades, stored, func(g models.GradeRecord) string { return g.ID }), nil
}

// ListByCourse returns the stored grades of a course.
func (r *MongoGradeRepository) ListByCourse(ctx context.Context, courseID string) ([]models.GradeRecord, error) {
	var rows []models.GradeRecord
	if err := findAll(ctx, r.col, bson.M{"course_id": courseID}, &rows); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return checkRows(rows)
}

// DeleteByIDs removes grades by id.
func (r *MongoGradeRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.col.DeleteMany(ctx, bson.M{"id": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("delete grades: %w", err)
	}
	return res.DeletedCount, nil
}

func findAll(ctx context.Context, col *mongo.Collection, filter bson.M, dest interface{}) error {
	cursor, err := col.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 0}))
	if err != nil {
		return err
	}
	return cursor.All(ctx, dest)
}

// idsInOrder maps each sent item to the id stored for its business key.
func idsInOrder[T interface{ BusinessKey() string }](sent, stored []T, id func(T) string) []string {
	byKey := make(map[string]string, len(stored))
	for _, row := range stored {
		byKey[row.BusinessKey()] = id(row)
	}
	ids := make([]string, 0, len(sent))
	for _, item := range sent {
		if v, ok := byKey[item.BusinessKey()]; ok {
			ids = append(ids, v)
		}
	}
	return ids
}
