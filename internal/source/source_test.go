package source

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelocantos/moodlelogs/internal/record"
)

const platformCSV = "\ufeffTime,User full name,Affected user,Event context,Component,Event name,Description,Origin,IP address\n" +
	`"3/10/21, 14:05",Ana Lima,-,"Forum: News",Forum,Discussion viewed,"The user with id '5' viewed the discussion",web,10.0.0.1` + "\n" +
	`"3/10/21, 14:01",Ana Lima,-,Course: Biology,System,Course viewed,"viewed, then left",web,10.0.0.1` + "\n"

func writeFile(t *testing.T, fsys afero.Fs, name string, data []byte) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, name, data, 0o644))
}

func TestPlatformFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/in/platform.csv", []byte(platformCSV))

	rows, rep, err := NewReader(fsys).Platform(context.Background(), "/in/platform.csv")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rep.Rows)

	assert.Equal(t, record.PlatformRow{
		Time:         "3/10/21, 14:05",
		Username:     "Ana Lima",
		AffectedUser: "-",
		EventContext: "Forum: News",
		Component:    "Forum",
		EventName:    "Discussion viewed",
		Description:  "The user with id '5' viewed the discussion",
		Origin:       "web",
		IPAddress:    "10.0.0.1",
	}, rows[0])
	assert.Equal(t, "viewed, then left", rows[1].Description)
}

func TestPlatformHeaderOrderAndOptionalColumns(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "p.csv", []byte("Event name,Time,Component,User full name,Affected user,Event context,Description\n"+
		"Course viewed,\"1/2/22, 09:00\",System,Ben,-,Course: Art,d\n"))

	rows, _, err := NewReader(fsys).Platform(context.Background(), "p.csv")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Course viewed", rows[0].EventName)
	assert.Equal(t, "Ben", rows[0].Username)
	assert.Empty(t, rows[0].Origin)
}

func TestPlatformMissingColumn(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "p.csv", []byte("Time,Component\n\"1/2/22, 09:00\",System\n"))

	_, _, err := NewReader(fsys).Platform(context.Background(), "p.csv")
	assert.ErrorContains(t, err, "missing column")
}

func TestPlatformDirectoryConcatenatesInFileOrder(t *testing.T) {
	fsys := afero.NewMemMapFs()
	header := "Time,User full name,Affected user,Event context,Component,Event name,Description,Origin,IP address\n"
	writeFile(t, fsys, "/logs/b.csv", []byte(header+"\"1/2/22, 09:00\",Ben,-,c,System,B1,d,web,ip\n"))
	writeFile(t, fsys, "/logs/a.csv", []byte(header+"\"1/2/22, 09:00\",Ana,-,c,System,A2,d,web,ip\n\"1/2/22, 08:00\",Ana,-,c,System,A1,d,web,ip\n"))
	writeFile(t, fsys, "/logs/notes.txt", []byte("ignored"))

	rows, rep, err := NewReader(fsys).Platform(context.Background(), "/logs")
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Files)

	var events []string
	for _, r := range rows {
		events = append(events, r.EventName)
	}
	assert.Equal(t, []string{"A2", "A1", "B1"}, events)
}

func TestPlatformDirectoryStopsWhenCancelled(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/logs/a.csv", []byte(platformCSV))
	writeFile(t, fsys, "/logs/b.csv", []byte(platformCSV))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rows, rep, err := NewReader(fsys).Platform(ctx, "/logs")
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, rows)
	assert.Zero(t, rep.Files)
}

func TestDatabaseHeaderless(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "db.csv", []byte("2,5,10,,1633262700\n1,5,10,NULL,1633262460\n"))

	rows, rep, err := NewReader(fsys).Database("db.csv")
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Rows)
	assert.Equal(t, []record.DatabaseRow{
		{ID: 2, UserID: 5, CourseID: 10, TimeCreated: 1633262700},
		{ID: 1, UserID: 5, CourseID: 10, TimeCreated: 1633262460},
	}, rows)
}

func TestDatabaseWithHeader(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "db.csv", []byte("id,userid,courseid,relateduserid,timecreated\n7,3,1,4,100\n"))

	rows, _, err := NewReader(fsys).Database("db.csv")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(4), rows[0].RelatedUserID)
}

func TestMalformedRows(t *testing.T) {
	data := []byte("id,userid,courseid,relateduserid,timecreated\n1,3,1,,100\n2,x,1,,101\n3,3\n4,3,1,,102\n")

	t.Run("abort", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		writeFile(t, fsys, "db.csv", data)

		_, _, err := NewReader(fsys).Database("db.csv")
		var bad *record.MalformedRowError
		require.True(t, errors.As(err, &bad), "got %v", err)
		assert.Equal(t, "userid", bad.Column)
		assert.Equal(t, "x", bad.Value)
		assert.Equal(t, 3, bad.Line)
	})

	t.Run("drop", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		writeFile(t, fsys, "db.csv", data)

		rd := NewReader(fsys)
		rd.Malformed = MalformedDrop
		rows, rep, err := rd.Database("db.csv")
		require.NoError(t, err)
		assert.Len(t, rows, 2)
		assert.Equal(t, 2, rep.Dropped)
		assert.Equal(t, 2, rep.Rows)
	})
}

func TestCompressedInputs(t *testing.T) {
	plain := []byte("id,userid,courseid,relateduserid,timecreated\n1,3,1,,100\n")

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	zst := enc.EncodeAll(plain, nil)
	require.NoError(t, enc.Close())

	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "db.csv.gz", gz.Bytes())
	writeFile(t, fsys, "db.csv.zst", zst)

	for _, name := range []string{"db.csv.gz", "db.csv.zst"} {
		t.Run(name, func(t *testing.T) {
			rows, _, err := NewReader(fsys).Database(name)
			require.NoError(t, err)
			assert.Equal(t, []record.DatabaseRow{{ID: 1, UserID: 3, CourseID: 1, TimeCreated: 100}}, rows)
		})
	}
}

func TestReferenceTables(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "courses.csv", []byte("id,shortname\n10,MATH101 \n11,BIO\n"))
	writeFile(t, fsys, "students.csv", []byte("10,5\n10,6\n"))
	writeFile(t, fsys, "managers.csv", []byte("roleid,userid\n1,8\n1,9\n"))
	writeFile(t, fsys, "creators.csv", []byte("7\n"))
	writeFile(t, fsys, "deleted.csv", []byte("id\n66\n"))
	rd := NewReader(fsys)

	courses, _, err := rd.Courses("courses.csv")
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{10: "MATH101", 11: "BIO"}, courses)

	students, _, err := rd.Enrolments("students.csv")
	require.NoError(t, err)
	assert.True(t, students.Has(10, 6))
	assert.False(t, students.Has(11, 6))

	managers, _, err := rd.UserIDs("managers.csv")
	require.NoError(t, err)
	assert.Equal(t, record.NewIDSet(8, 9), managers)

	creators, _, err := rd.UserIDs("creators.csv")
	require.NoError(t, err)
	assert.Equal(t, record.NewIDSet(7), creators)

	deleted, _, err := rd.UserIDs("deleted.csv")
	require.NoError(t, err)
	assert.True(t, deleted.Has(66))
}

func TestEnrolmentQuery(t *testing.T) {
	q := enrolmentQuery("mdl_")
	assert.Contains(t, q, "FROM mdl_role_assignments ra JOIN mdl_context cx")
	assert.Contains(t, q, "cx.contextlevel = 50")
	assert.Contains(t, q, "cx.instanceid <> 1")
}

func TestIsCSV(t *testing.T) {
	assert.True(t, isCSV("a.csv"))
	assert.True(t, isCSV("A.CSV.GZ"))
	assert.True(t, isCSV("a.csv.zst"))
	assert.False(t, isCSV("a.txt"))
	assert.False(t, isCSV("a.gz"))
}
