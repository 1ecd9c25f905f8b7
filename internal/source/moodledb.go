package source

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/marcelocantos/moodlelogs/internal/record"
)

// Moodle role ids of a default installation.
const (
	RoleIDManager           = 1
	RoleIDCourseCreator     = 2
	RoleIDTeacher           = 3
	RoleIDNonEditingTeacher = 4
	RoleIDStudent           = 5
)

// contextCourse is the context level of course role assignments.
const contextCourse = 50

// RoleIDs maps the cascade's roles to the role ids of a site.
type RoleIDs struct {
	Student           int64 `yaml:"student"`
	Teacher           int64 `yaml:"teacher"`
	NonEditingTeacher int64 `yaml:"non_editing_teacher"`
	CourseCreator     int64 `yaml:"course_creator"`
	Manager           int64 `yaml:"manager"`
}

// DefaultRoleIDs returns the role ids of a default installation.
func DefaultRoleIDs() RoleIDs {
	return RoleIDs{
		Student:           RoleIDStudent,
		Teacher:           RoleIDTeacher,
		NonEditingTeacher: RoleIDNonEditingTeacher,
		CourseCreator:     RoleIDCourseCreator,
		Manager:           RoleIDManager,
	}
}

// MoodleDB reads the log store and the reference tables straight from a
// Moodle database.
type MoodleDB struct {
	db     *gorm.DB
	prefix string
}

// OpenMoodleDB connects to a Moodle database. driver is "mysql" (also used
// for MariaDB) or "postgres".
func OpenMoodleDB(driver, dsn, prefix string, debug bool) (*MoodleDB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql", "mariadb":
		dialector = mysql.Open(dsn)
	case "postgres", "postgresql", "pgsql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q (want mysql or postgres)", driver)
	}

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if debug {
		cfg.Logger = logger.Default.LogMode(logger.Info)
	}
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", driver, err)
	}
	return &MoodleDB{db: db, prefix: prefix}, nil
}

// Close releases the connection pool.
func (m *MoodleDB) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (m *MoodleDB) table(name string) string { return m.prefix + name }

// logRow is a row of the standard log store.
type logRow struct {
	ID            int64  `gorm:"column:id"`
	UserID        int64  `gorm:"column:userid"`
	CourseID      *int64 `gorm:"column:courseid"`
	RelatedUserID *int64 `gorm:"column:relateduserid"`
	TimeCreated   int64  `gorm:"column:timecreated"`
}

// LogRange restricts the log rows read to [Since, Until) in unix seconds.
// Zero bounds are open.
type LogRange struct {
	Since int64
	Until int64
}

// LogRows reads the standard log store.
func (m *MoodleDB) LogRows(ctx context.Context, rng LogRange) ([]record.DatabaseRow, error) {
	q := m.db.WithContext(ctx).
		Table(m.table("logstore_standard_log")).
		Select("id, userid, courseid, relateduserid, timecreated")
	if rng.Since > 0 {
		q = q.Where("timecreated >= ?", rng.Since)
	}
	if rng.Until > 0 {
		q = q.Where("timecreated < ?", rng.Until)
	}

	var rows []logRow
	if err := q.Order("timecreated, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read %s: %w", m.table("logstore_standard_log"), err)
	}

	out := make([]record.DatabaseRow, len(rows))
	for i, r := range rows {
		out[i] = record.DatabaseRow{ID: r.ID, UserID: r.UserID, TimeCreated: r.TimeCreated}
		if r.CourseID != nil {
			out[i].CourseID = *r.CourseID
		}
		if r.RelatedUserID != nil {
			out[i].RelatedUserID = *r.RelatedUserID
		}
	}
	return out, nil
}

// Tables reads every reference table of the role cascade and the filter.
func (m *MoodleDB) Tables(ctx context.Context, ids RoleIDs) (record.Tables, error) {
	var t record.Tables
	var err error

	if t.Courses, err = m.courses(ctx); err != nil {
		return t, err
	}
	for _, e := range []struct {
		dst  *record.PairSet
		role int64
	}{
		{&t.Student, ids.Student},
		{&t.Teacher, ids.Teacher},
		{&t.NonEditingTeacher, ids.NonEditingTeacher},
	} {
		if *e.dst, err = m.enrolments(ctx, e.role); err != nil {
			return t, err
		}
	}
	if t.CourseCreator, err = m.roleHolders(ctx, ids.CourseCreator); err != nil {
		return t, err
	}
	if t.Manager, err = m.roleHolders(ctx, ids.Manager); err != nil {
		return t, err
	}
	if t.Admin, err = m.siteAdmins(ctx); err != nil {
		return t, err
	}
	if t.DeletedUsers, err = m.deletedUsers(ctx); err != nil {
		return t, err
	}
	return t, nil
}

func (m *MoodleDB) courses(ctx context.Context) (map[int64]string, error) {
	var rows []struct {
		ID        int64
		Shortname string
	}
	if err := m.db.WithContext(ctx).Table(m.table("course")).Select("id, shortname").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read %s: %w", m.table("course"), err)
	}
	out := make(map[int64]string, len(rows))
	for _, r := range rows {
		out[r.ID] = strings.TrimSpace(r.Shortname)
	}
	return out, nil
}

// enrolmentQuery selects the (course, user) pairs holding a role in a course
// context. The site course (id 1) is excluded.
func enrolmentQuery(prefix string) string {
	return fmt.Sprintf(
		"SELECT cx.instanceid AS courseid, ra.userid AS userid "+
			"FROM %srole_assignments ra JOIN %scontext cx ON cx.id = ra.contextid "+
			"WHERE cx.contextlevel = %d AND ra.roleid = ? AND cx.instanceid <> 1",
		prefix, prefix, contextCourse)
}

func (m *MoodleDB) enrolments(ctx context.Context, roleID int64) (record.PairSet, error) {
	var rows []struct {
		CourseID int64 `gorm:"column:courseid"`
		UserID   int64 `gorm:"column:userid"`
	}
	if err := m.db.WithContext(ctx).Raw(enrolmentQuery(m.prefix), roleID).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("read role %d assignments: %w", roleID, err)
	}
	set := make(record.PairSet, len(rows))
	for _, r := range rows {
		set.Add(r.CourseID, r.UserID)
	}
	return set, nil
}

func (m *MoodleDB) roleHolders(ctx context.Context, roleID int64) (record.IDSet, error) {
	var ids []int64
	err := m.db.WithContext(ctx).
		Table(m.table("role_assignments")).
		Distinct("userid").
		Where("roleid = ?", roleID).
		Pluck("userid", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("read role %d holders: %w", roleID, err)
	}
	return record.NewIDSet(ids...), nil
}

// siteAdmins reads the siteadmins setting. A site without the setting yields
// nil so the default admin set applies.
func (m *MoodleDB) siteAdmins(ctx context.Context) (record.IDSet, error) {
	var values []string
	err := m.db.WithContext(ctx).
		Table(m.table("config")).
		Where("name = ?", "siteadmins").
		Pluck("value", &values).Error
	if err != nil {
		return nil, fmt.Errorf("read siteadmins: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return record.ParseIDList(values[0])
}

func (m *MoodleDB) deletedUsers(ctx context.Context) (record.IDSet, error) {
	var ids []int64
	err := m.db.WithContext(ctx).
		Table(m.table("user")).
		Where("deleted = ?", 1).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("read deleted users: %w", err)
	}
	return record.NewIDSet(ids...), nil
}
