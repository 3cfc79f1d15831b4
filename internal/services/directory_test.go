package services

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/models"
	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/testutil"
)

func TestGormDirectoryActiveTerm(t *testing.T) {
	db := testutil.NewDB(t)
	dir := NewGormDirectory(db)
	ctx := context.Background()

	school := testutil.School(t, db)
	schoolTerm := testutil.Term(t, db, school)
	platformTerm := testutil.Term(t, db, nil)
	require.NoError(t, db.Create(&models.PaymentTerm{
		SchoolID:  &school.ID,
		Name:      "Term 3 2025",
		StartDate: testutil.Now.AddDate(0, -6, 0),
		EndDate:   testutil.Now.AddDate(0, -3, 0),
		IsActive:  false,
	}).Error)

	got, err := dir.ActiveTerm(ctx, &school.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, schoolTerm.ID, got.ID)

	got, err = dir.ActiveTerm(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, platformTerm.ID, got.ID)

	other := testutil.School(t, db)
	got, err = dir.ActiveTerm(ctx, &other.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGormDirectoryNotFound(t *testing.T) {
	dir := NewGormDirectory(testutil.NewDB(t))
	ctx := context.Background()

	_, err := dir.GetStudent(ctx, 42)
	assert.ErrorIs(t, err, ErrStudentNotFound)
	_, err = dir.GetSchool(ctx, 42)
	assert.ErrorIs(t, err, ErrSchoolNotFound)
	_, err = dir.GetTerm(ctx, 42)
	assert.ErrorIs(t, err, ErrTermNotFound)
}

func TestCachedDirectoryFallsThroughWhenCacheIsDown(t *testing.T) {
	db := testutil.NewDB(t)
	school := testutil.School(t, db)
	student := testutil.Student(t, db, school)

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })

	dir := NewCachedDirectory(NewGormDirectory(db), NewRedisCacheFromClient(client), time.Minute)

	got, err := dir.GetStudent(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Equal(t, student.Name, got.Name)

	_, err = dir.GetSchool(context.Background(), 999)
	assert.ErrorIs(t, err, ErrSchoolNotFound)
}
