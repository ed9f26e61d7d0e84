package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/noah-isme/sma-entry-sync/internal/models"
	appErrors "github.com/noah-isme/sma-entry-sync/pkg/errors"
)

func TestMongoGradeBatchUpsert(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("returns stored ids", func(mt *mtest.T) {
		repo := &MongoGradeRepository{col: mt.Coll, validate: validator.New()}
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
				bson.D{{Key: "id", Value: "old-s1"}, {Key: "student_id", Value: "s1"}, {Key: "course_id", Value: "c1"}, {Key: "score", Value: 80.0}},
				bson.D{{Key: "id", Value: "g-s2"}, {Key: "student_id", Value: "s2"}, {Key: "course_id", Value: "c1"}, {Key: "score", Value: 70.0}},
			),
		)

		ids, err := repo.BatchUpsert(context.Background(), []models.GradeRecord{gradeRecord("s1", 80), gradeRecord("s2", 70)})
		require.NoError(mt, err)
		assert.Equal(mt, []string{"old-s1", "g-s2"}, ids)
	})

	mt.Run("rejects invalid items before writing", func(mt *mtest.T) {
		repo := &MongoGradeRepository{col: mt.Coll, validate: validator.New()}
		bad := gradeRecord("s1", 80)
		bad.CourseID = ""
		_, err := repo.BatchUpsert(context.Background(), []models.GradeRecord{bad})
		require.Error(mt, err)
		assert.True(mt, errors.Is(err, appErrors.ErrValidation))
	})

	mt.Run("surfaces write errors", func(mt *mtest.T) {
		repo := &MongoGradeRepository{col: mt.Coll, validate: validator.New()}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 11600, Message: "interrupted"}))
		_, err := repo.BatchUpsert(context.Background(), []models.GradeRecord{gradeRecord("s1", 80)})
		require.Error(mt, err)
	})
}

func TestMongoAttendanceListBySession(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("decodes rows", func(mt *mtest.T) {
		repo := &MongoAttendanceRepository{col: mt.Coll, validate: validator.New()}
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{
				{Key: "id", Value: "a1"}, {Key: "student_id", Value: "s1"}, {Key: "course_id", Value: "c1"},
				{Key: "session_date", Value: "2024-02-01"}, {Key: "status", Value: "absent"},
				{Key: "recorded_by", Value: "t"}, {Key: "recorded_at", Value: time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)},
			},
		))
		rows, err := repo.ListBySession(context.Background(), "c1", "2024-02-01")
		require.NoError(mt, err)
		require.Len(mt, rows, 1)
		assert.Equal(mt, models.AttendanceStatusAbsent, rows[0].Status)
	})
}
