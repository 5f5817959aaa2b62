package partybus

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	dbTypeSQLite   = "sqlite"
	dbTypePostgres = "postgres"

	postgresNotifyChannelReloadProfileCache = "partybus_reload_profile_cache"
	postgresNotifyChannelProfileUpdated     = "partybus_profile_updated"
	postgresNotifyChannelScheduleUpdated    = "partybus_schedule_updated"
	postgresNotifyChannelStop               = "partybus_stop"

	recordSeparator = string(rune(30))
)

var (
	sqliteExecPragma = []string{
		"pragma journal_mode=WAL;",
		"pragma synchronous = normal;",
		"pragma temp_store = memory;",
		"pragma foreign_keys = ON;",
	}
	dbOperationTimeout    = 30 * time.Second
	dbNotifierSendTimeout = 15 * time.Second
)

// ModelUnixTime is an embeddable model with Unix timestamps for
// creation, update, and deletion, stored in milliseconds.
type ModelUnixTime struct {
	CreatedAt int64          `gorm:"autoCreateTime:milli" json:"created_at,omitempty"`
	UpdatedAt int64          `gorm:"autoUpdateTime:milli" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

type ModelUintID struct {
	ID uint `gorm:"primaryKey" json:"id"`
}

// StringList is a string slice stored as a single record-separator-joined
// column. Order is preserved; membership checks are linear, which is fine
// at the handful-of-entries scale these columns hold (regions, tags,
// mute lists).
type StringList []string

// Scan implements the sql.Scanner interface.
func (s *StringList) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		s.parse(string(v))
	case string:
		s.parse(v)
	default:
		return fmt.Errorf("unexpected type for StringList: %T", value)
	}
	return nil
}

// Value implements the driver.Valuer interface.
func (s StringList) Value() (driver.Value, error) {
	return strings.Join(s, recordSeparator), nil
}

func (s *StringList) parse(v string) {
	if v == "" {
		*s = nil
		return
	}
	*s = strings.Split(v, recordSeparator)
}

// GormDataType is used by GORM to determine the default data type for a field.
func (StringList) GormDataType() string {
	return "string"
}

// Contains reports whether the list holds the given value.
func (s StringList) Contains(value string) bool {
	for _, v := range s {
		if v == value {
			return true
		}
	}
	return false
}

// Overlaps reports whether the two lists share at least one value.
func (s StringList) Overlaps(other StringList) bool {
	for _, v := range other {
		if s.Contains(v) {
			return true
		}
	}
	return false
}

// database wraps the GORM connection with logging, an in-memory Profile
// cache, and optional write serialization. It implements [DBI], which
// exists primarily to enable mocking in tests.
//
// When enableConcurrentWrites is false (SQLite), all writes are serialized
// behind a mutex to avoid 'database is locked' errors.
type database struct {
	db                     *gorm.DB
	mu                     sync.Mutex
	logger                 *slog.Logger
	profileCache           map[string]*Profile
	cacheMu                sync.Mutex
	enableConcurrentWrites bool
}

// NewDatabase initializes a new database instance wrapping the given GORM
// connection. If log is nil, the default logger is used.
func NewDatabase(
	db *gorm.DB,
	log *slog.Logger,
	enableConcurrentWrites bool,
) DBI {
	if log == nil {
		log = slog.Default()
	}
	return &database{
		db:                     db,
		profileCache:           map[string]*Profile{},
		logger:                 log.With(loggerNameKey, "writedb"),
		enableConcurrentWrites: enableConcurrentWrites,
	}
}

func (d *database) ProfileCache() map[string]*Profile {
	return d.profileCache
}

func (d *database) ProfileCacheLock() {
	d.cacheMu.Lock()
}

func (d *database) ProfileCacheUnlock() {
	d.cacheMu.Unlock()
}

func (d *database) DB() *gorm.DB {
	return d.db
}

func (d *database) Lock() {
	if d.enableConcurrentWrites {
		return
	}
	d.mu.Lock()
}

func (d *database) Unlock() {
	if d.enableConcurrentWrites {
		return
	}
	d.mu.Unlock()
}

// LoadProfiles resets the cache and returns all [Profile] records, with
// their availability windows preloaded. The fan-out and revisit loops both
// work off this cache rather than querying per-posting.
func (d *database) LoadProfiles() []Profile {
	d.profileCache = map[string]*Profile{}

	var profiles []Profile
	_ = d.db.Preload("Windows").Find(&profiles)
	for i := 0; i < len(profiles); i++ {
		p := profiles[i]
		d.profileCache[p.ID] = &p
	}
	return profiles
}

func (d *database) GetProfile(profileID string) *Profile {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	return d.profileCache[profileID]
}

func (d *database) ReloadProfile(profileID string) *Profile {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	var profile Profile
	err := d.db.Preload("Windows").Where("id = ?", profileID).Last(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			delete(d.profileCache, profileID)
		}
		return nil
	}
	d.profileCache[profileID] = &profile
	return &profile
}

// GetOrCreateProfile retrieves a profile from the cache or the database,
// creating a new one if none exists. Existing profiles get their LastSeen
// bumped, and their username fields refreshed if the Discord user changed
// them since last seen.
func (d *database) GetOrCreateProfile(
	ctx context.Context,
	u discordgo.User,
	timezoneLabel string,
) (*Profile, bool, error) {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()

	log, ok := ContextLogger(ctx)
	if log == nil || !ok {
		log = slog.Default()
	}

	if profile, cached := d.profileCache[u.ID]; cached {
		profile.LastSeen = time.Now().UTC().UnixMilli()
		updates := map[string]any{columnProfileLastSeen: profile.LastSeen}

		if profile.profileChangedDiscordUsername(u) {
			log.Info(
				"user changed username since last seen",
				slog.Group(
					"old",
					"username", profile.Username,
					"global_name", profile.GlobalName,
				),
				slog.Group(
					"new",
					"username", u.Username,
					"global_name", u.GlobalName,
				),
			)
			profile.Username = u.Username
			profile.GlobalName = u.GlobalName
			updates[columnProfileUsername] = u.Username
			updates[columnProfileGlobalName] = u.GlobalName
		}
		if _, err := d.Updates(context.TODO(), profile, updates); err != nil {
			log.Error("error updating profile", "profile", profile, tint.Err(err))
		}
		return profile, false, nil
	}

	profile := NewProfile(u, timezoneLabel)
	log.InfoContext(ctx, "creating new profile", "profile", profile)

	if _, err := d.Create(ctx, profile); err != nil {
		log.Error("error creating profile", "profile", profile, tint.Err(err))
		return nil, true, err
	}

	d.profileCache[u.ID] = profile
	return profile, true, nil
}

// UpdateProfileTimezone sets a new timezone label and deletes the
// profile's stored availability in the same transaction. Stored windows
// are UTC conversions under the old zone - re-converting them is ambiguous,
// so the user is forced to re-enter availability instead.
func (d *database) UpdateProfileTimezone(
	ctx context.Context,
	profile *Profile,
	timezoneLabel string,
) error {
	if !d.enableConcurrentWrites {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	_, ok := ctx.Deadline()
	if !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dbOperationTimeout)
		defer cancel()
	}
	err := d.db.WithContext(ctx).Transaction(
		func(tx *gorm.DB) error {
			e := tx.Where(
				"profile_id = ?", profile.ID,
			).Delete(&AvailabilityWindow{}).Error
			if e != nil {
				return e
			}
			return tx.Model(profile).Update("timezone_label", timezoneLabel).Error
		},
	)
	if err != nil {
		return err
	}
	profile.TimezoneLabel = timezoneLabel
	profile.Windows = nil
	return nil
}

func (d *database) Create(ctx context.Context, value any, omit ...string) (
	rowsAffected int64,
	err error,
) {
	if !d.enableConcurrentWrites {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	db := d.db
	_, ok := ctx.Deadline()
	if !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dbOperationTimeout)
		defer cancel()
	}
	db = db.WithContext(ctx)

	if len(omit) > 0 {
		rv := db.Omit(omit...).Create(value)
		return rv.RowsAffected, rv.Error
	}
	rv := db.Create(value)
	return rv.RowsAffected, rv.Error
}

func (d *database) Updates(ctx context.Context, model, values any) (
	rowsAffected int64,
	err error,
) {
	if !d.enableConcurrentWrites {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	_, ok := ctx.Deadline()
	if !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dbOperationTimeout)
		defer cancel()
	}
	rv := d.db.WithContext(ctx).Model(model).Updates(values)
	return rv.RowsAffected, rv.Error
}

func (d *database) Transaction(
	ctx context.Context,
	fc func(tx *gorm.DB) error,
	opts ...*sql.TxOptions,
) (err error) {
	if !d.enableConcurrentWrites {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	_, ok := ctx.Deadline()
	if !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dbOperationTimeout)
		defer cancel()
	}
	return d.db.WithContext(ctx).Transaction(fc, opts...)
}

func (d *database) Save(ctx context.Context, value any, omit ...string) (
	rowsAffected int64,
	err error,
) {
	if !d.enableConcurrentWrites {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	_, ok := ctx.Deadline()
	if !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dbOperationTimeout)
		defer cancel()
	}

	if len(omit) > 0 {
		rv := d.db.WithContext(ctx).Omit(omit...).Save(value)
		return rv.RowsAffected, rv.Error
	}
	rv := d.db.WithContext(ctx).Save(value)
	return rv.RowsAffected, rv.Error
}

func (d *database) Update(
	ctx context.Context,
	model any,
	column string,
	value any,
) (rowsAffected int64, err error) {
	if !d.enableConcurrentWrites {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	_, ok := ctx.Deadline()
	if !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dbOperationTimeout)
		defer cancel()
	}

	rv := d.db.WithContext(ctx).Model(model).Update(column, value)
	return rv.RowsAffected, rv.Error
}

func (d *database) UpdatesWhere(
	ctx context.Context,
	model any,
	values map[string]any,
	query any,
	conds ...any,
) (rowsAffected int64, err error) {
	if !d.enableConcurrentWrites {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	_, ok := ctx.Deadline()
	if !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dbOperationTimeout)
		defer cancel()
	}

	rv := d.db.WithContext(ctx).Model(model).Where(query, conds...).Updates(values)
	return rv.RowsAffected, rv.Error
}

func (d *database) Delete(
	value any,
	conds ...any,
) (rowsAffected int64, err error) {
	if !d.enableConcurrentWrites {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	rv := d.db.Delete(value, conds...)
	return rv.RowsAffected, rv.Error
}

// Duration is a wrapper for time.Duration that implements
// SQL Scanner and Valuer interfaces for GORM.
type Duration struct {
	time.Duration
}

// Scan implements the sql.Scanner interface.
func (d *Duration) Scan(value any) error {
	switch v := value.(type) {
	case []byte:
		return d.parse(string(v))
	case string:
		return d.parse(v)
	default:
		return fmt.Errorf("unexpected type for Duration: %T", value)
	}
}

// Value implements the driver.Valuer interface.
func (d Duration) Value() (driver.Value, error) {
	return d.String(), nil
}

func (d *Duration) parse(value string) error {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	d.Duration = duration
	return nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	// Remove quotes
	s = s[1 : len(s)-1]
	return d.parse(s)
}

// MarshalJSON implements the json.Marshaller interface.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`%q`, d.String())), nil
}

// GormDataType is used by GORM to determine the default data type for a field.
func (Duration) GormDataType() string {
	return "string"
}

// DBI defines the interface for database operations. This is here primarily
// to enable mocking of the database operations for testing.
// [database] implements this interface for 'real' DB operations.
type DBI interface {
	// ProfileCacheLock locks the in-memory Profile cache
	ProfileCacheLock()

	// ProfileCacheUnlock unlocks the in-memory Profile cache
	ProfileCacheUnlock()

	// ProfileCache returns the in-memory cache of Profile objects
	ProfileCache() map[string]*Profile

	Lock()
	Unlock()

	DB() *gorm.DB
	LoadProfiles() []Profile
	GetProfile(profileID string) *Profile
	ReloadProfile(profileID string) *Profile
	GetOrCreateProfile(ctx context.Context, u discordgo.User, timezoneLabel string) (
		*Profile,
		bool,
		error,
	)
	UpdateProfileTimezone(ctx context.Context, profile *Profile, timezoneLabel string) error

	// SetAvailability replaces the profile's window for the weekday
	SetAvailability(ctx context.Context, window *AvailabilityWindow) error
	ClearAvailability(ctx context.Context, profileID string, weekday Weekday) (
		rowsAffected int64,
		err error,
	)

	// ReplaceVenueSchedule swaps a venue's recurrence rules wholesale
	ReplaceVenueSchedule(ctx context.Context, venueID string, rules []RecurrenceRule) error

	Create(ctx context.Context, value any, omit ...string) (rowsAffected int64, err error)
	Updates(ctx context.Context, model any, values any) (rowsAffected int64, err error)
	Delete(value any, conds ...any) (rowsAffected int64, err error)
	Transaction(
		ctx context.Context,
		fc func(tx *gorm.DB) error,
		opts ...*sql.TxOptions,
	) (err error)
	Save(ctx context.Context, value any, omit ...string) (rowsAffected int64, err error)
	Update(ctx context.Context, model any, column string, value any) (
		rowsAffected int64,
		err error,
	)
	UpdatesWhere(
		ctx context.Context,
		model any,
		values map[string]any,
		query any,
		conds ...any,
	) (rowsAffected int64, err error)
}

// CreateDB initializes and returns a GORM database connection based on the
// specified database type ('sqlite' or 'postgres'), and auto-migrates the
// bot's models. A nil logLevel or non-positive slowThreshold falls back to
// the package defaults.
func CreateDB(
	ctx context.Context,
	databaseType string,
	database string,
	logLevel slog.Leveler,
	slowThreshold time.Duration,
) (*gorm.DB, error) {
	if logLevel == nil {
		logLevel = DefaultDatabaseLogLevel
	}
	if slowThreshold <= 0 {
		slowThreshold = DefaultDatabaseSlowThreshold
	}
	handler := tint.NewHandler(
		os.Stdout,
		&tint.Options{
			Level:     logLevel,
			AddSource: true,
		},
	)

	gormLogger := newGORMLogger(handler, slowThreshold)
	dbLogger := slog.New(handler)

	dbLogger.InfoContext(
		ctx,
		"Initializing database",
		"database_type", databaseType,
		"database", database,
	)
	db, err := getDB(databaseType, database, gormLogger)
	if err != nil {
		return db, err
	}

	if databaseType == dbTypeSQLite {
		for _, pragma := range sqliteExecPragma {
			if err = db.Exec(pragma).Error; err != nil {
				return db, err
			}
		}
	}

	txn := db.WithContext(ctx).Begin()

	mg := txn.Migrator()
	err = mg.AutoMigrate(
		&Profile{},
		&AvailabilityWindow{},
		&Venue{},
		&RecurrenceRule{},
		&JobPosting{},
		&BotSettings{},
	)
	if err != nil {
		return db, err
	}

	if commitErr := txn.Commit().Error; commitErr != nil {
		return db, commitErr
	}

	return db, nil
}

// getDB initializes a GORM connection for the given database type:
// 'sqlite' (database is a file path) or 'postgres' (connection string).
func getDB(
	databaseType string,
	database string,
	gormLogger *gormStructuredLogger,
) (*gorm.DB, error) {
	switch databaseType {
	case dbTypeSQLite:
		parentDir := filepath.Dir(database)
		if parentDir != "" {
			if err := os.MkdirAll(parentDir, 0755); err != nil {
				if !errors.Is(err, os.ErrExist) {
					return nil, err
				}
			}
		}
		return gorm.Open(
			sqlite.Open(database),
			&gorm.Config{
				Logger: gormLogger,
				NowFunc: func() time.Time {
					return time.Now().UTC()
				},
			},
		)
	case dbTypePostgres:
		return gorm.Open(
			postgres.Open(database), &gorm.Config{
				Logger: gormLogger,
				NowFunc: func() time.Time {
					return time.Now().UTC()
				},
			},
		)
	default:
		return nil, fmt.Errorf(
			"unsupported database type: %s (must be %q or %q)",
			databaseType, dbTypeSQLite, dbTypePostgres,
		)
	}
}

// DBNotifier defines the interface for notifying bot instances of database
// changes: profile updates, full cache reloads, venue schedule re-imports,
// and shutdown.
type DBNotifier interface {
	ProfileCacheChannelName() string

	// ReloadProfileCache sends a notification to bot instances to fully
	// reload their profile cache
	ReloadProfileCache(context.Context) bool

	ProfileUpdateChannelName() string

	// ProfileUpdated sends a notification to bot instances that a profile
	// record has been updated, and should be reloaded.
	ProfileUpdated(ctx context.Context, profileID string) bool

	ScheduleUpdateChannelName() string

	// ScheduleUpdated sends a notification that a venue's schedule was
	// re-imported, so upcoming-opening displays should be recomputed
	ScheduleUpdated(ctx context.Context, venueID string) bool

	StopChannelName() string

	// Stop sends a shutdown signal to all bots
	Stop(context.Context) bool

	// ID returns the identifier for this notifier. DBNotifier instances
	// should use this ID to filter out their own notifications.
	ID() string
	Listen(ctx context.Context, channel string) error
}

func newDBNotifier(b *PartyBus) (DBNotifier, error) {
	notifyID, err := generateRandomHexString(16)
	if err != nil {
		return nil, err
	}
	log := b.logger.With(loggerNameKey, "db_notifier")
	switch b.config.DatabaseType {
	case dbTypeSQLite:
		return &sqliteNotifier{
			logger:         log,
			b:              b,
			sqliteNotifyID: notifyID,
		}, nil
	case dbTypePostgres:
		return &postgresNotifier{
			b:          b,
			logger:     log,
			pgNotifyID: notifyID,
		}, nil
	default:
		return nil, errors.New("invalid database type")
	}
}

// sqliteNotifier forwards notifications in-process. SQLite deployments run
// a single instance, so there's no wire to cross.
type sqliteNotifier struct {
	logger         *slog.Logger
	b              *PartyBus
	sqliteNotifyID string
}

func (s *sqliteNotifier) Listen(_ context.Context, channel string) error {
	s.logger.Debug("listener called", "channel", channel)
	return nil
}

func (sqliteNotifier) StopChannelName() string {
	return ""
}

func (s *sqliteNotifier) Stop(ctx context.Context) bool {
	s.logger.Info("notifying stop signal")
	select {
	case s.b.signalStop <- struct{}{}:
	//
	case <-ctx.Done():
		s.logger.Warn("timeout sending stop signal")
		return false
	}
	return true
}

func (sqliteNotifier) ProfileUpdateChannelName() string {
	return ""
}

func (s *sqliteNotifier) ProfileUpdated(ctx context.Context, profileID string) bool {
	s.logger.Info("got profile update notification", "profile_id", profileID)
	select {
	case s.b.triggerProfileUpdatedRefreshCh <- profileID:
	//
	case <-ctx.Done():
		s.logger.Warn("timeout sending profile refresh", "profile_id", profileID)
		return false
	}
	return true
}

func (sqliteNotifier) ScheduleUpdateChannelName() string {
	return ""
}

func (s *sqliteNotifier) ScheduleUpdated(ctx context.Context, venueID string) bool {
	s.logger.Info("got schedule update notification", "venue_id", venueID)
	select {
	case s.b.triggerScheduleRefreshCh <- venueID:
	//
	case <-ctx.Done():
		s.logger.Warn("timeout sending schedule refresh", "venue_id", venueID)
		return false
	}
	return true
}

func (s *sqliteNotifier) ID() string {
	return s.sqliteNotifyID
}

func (s *sqliteNotifier) ReloadProfileCache(ctx context.Context) bool {
	s.logger.Info("got profile cache reload notification")
	select {
	case s.b.triggerProfileCacheRefreshCh <- true:
	//
	case <-ctx.Done():
		s.logger.Warn("timeout sending profile cache refresh signal")
	}
	return true
}

func (sqliteNotifier) ProfileCacheChannelName() string {
	return ""
}

// postgresNotifier announces changes across bot instances with
// LISTEN/NOTIFY.
type postgresNotifier struct {
	b          *PartyBus
	logger     *slog.Logger
	pgNotifyID string
}

func (postgresNotifier) ProfileCacheChannelName() string {
	return postgresNotifyChannelReloadProfileCache
}

func (p *postgresNotifier) ID() string {
	return p.pgNotifyID
}

func (postgresNotifier) ProfileUpdateChannelName() string {
	return postgresNotifyChannelProfileUpdated
}

func (postgresNotifier) ScheduleUpdateChannelName() string {
	return postgresNotifyChannelScheduleUpdated
}

func (postgresNotifier) StopChannelName() string {
	return postgresNotifyChannelStop
}

func (p *postgresNotifier) notify(ctx context.Context, channel, payload string) bool {
	notifyErr := p.b.writeDB.DB().WithContext(ctx).Exec(
		"SELECT pg_notify(?, ?)",
		channel,
		payload,
	).Error
	if notifyErr != nil {
		p.logger.ErrorContext(
			ctx,
			"Error sending NOTIFY",
			"channel", channel,
			tint.Err(notifyErr),
		)
		return false
	}
	p.logger.Info(
		"sent notification",
		"channel", channel,
		"pg_notify_id", p.ID(),
	)
	return true
}

func (p *postgresNotifier) Stop(ctx context.Context) bool {
	return p.notify(ctx, p.StopChannelName(), p.ID())
}

func (p *postgresNotifier) ProfileUpdated(ctx context.Context, profileID string) bool {
	msg := newRecordNotificationMessage(p.ID(), profileID)
	return p.notify(ctx, p.ProfileUpdateChannelName(), msg)
}

func (p *postgresNotifier) ScheduleUpdated(ctx context.Context, venueID string) bool {
	msg := newRecordNotificationMessage(p.ID(), venueID)
	return p.notify(ctx, p.ScheduleUpdateChannelName(), msg)
}

func (p *postgresNotifier) ReloadProfileCache(ctx context.Context) bool {
	sent := p.notify(ctx, p.ProfileCacheChannelName(), p.ID())

	select {
	case p.b.triggerProfileCacheRefreshCh <- true:
	//
	case <-ctx.Done():
		p.logger.Warn("timeout sending profile cache refresh signal")
	}

	return sent
}

func (p *postgresNotifier) Listen(ctx context.Context, channel string) error {
	p.logger.Info("starting db listener", "channel", channel)

	config, err := pgxpool.ParseConfig(p.b.config.Database)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error parsing database config", tint.Err(err))
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error creating connection pool", tint.Err(err))
		return err
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error acquiring connection", tint.Err(err))
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, fmt.Sprintf("LISTEN %s", channel))
	if err != nil {
		p.logger.ErrorContext(ctx, "Error setting up listener", tint.Err(err))
		return err
	}
	logger := p.logger.With("channel", channel)
	logger.InfoContext(ctx, "Started listening on channel")

	for ctx.Err() == nil {
		notification, e := conn.Conn().WaitForNotification(ctx)
		if e != nil {
			logger.ErrorContext(ctx, "Error waiting for notification", tint.Err(e))
			time.Sleep(5 * time.Second) // Wait before retrying
			continue
		}
		if notification.Payload == p.ID() {
			logger.Info(
				"Received notification from self, ignoring",
				"payload",
				notification.Payload,
			)
			continue
		}

		switch channel {
		case p.ProfileCacheChannelName():
			logger.InfoContext(ctx, "Received notification to reload profile cache")
			select {
			case p.b.triggerProfileCacheRefreshCh <- true:
				logger.Info("sent cache refresh signal from postgres listener")
			case <-time.After(dbNotifierSendTimeout):
				logger.Warn("timed out sending cache refresh signal")
			}
		case p.ProfileUpdateChannelName():
			notifierID, profileID := parseRecordNotification(notification.Payload)
			if notifierID == p.ID() {
				logger.Info("Received profile update notification from self, ignoring")
				continue
			}
			select {
			case p.b.triggerProfileUpdatedRefreshCh <- profileID:
				logger.Info("sent signal to update profile", "profile_id", profileID)
			case <-time.After(dbNotifierSendTimeout):
				logger.Warn(
					"timed out sending profile refresh signal",
					"profile_id", profileID,
				)
			}
		case p.ScheduleUpdateChannelName():
			notifierID, venueID := parseRecordNotification(notification.Payload)
			if notifierID == p.ID() {
				logger.Info("Received schedule update notification from self, ignoring")
				continue
			}
			select {
			case p.b.triggerScheduleRefreshCh <- venueID:
				logger.Info("sent signal to refresh schedule", "venue_id", venueID)
			case <-time.After(dbNotifierSendTimeout):
				logger.Warn(
					"timed out sending schedule refresh signal",
					"venue_id", venueID,
				)
			}
		case p.StopChannelName():
			logger.InfoContext(ctx, "received stop signal via NOTIFY")
			select {
			case p.b.signalStop <- struct{}{}:
				logger.Info("forwarded stop signal")
			case <-time.After(dbNotifierSendTimeout):
				logger.Warn("timed out forwarding stop signal")
			}
		default:
			logger.Warn("Received unknown notification", "channel", notification.Channel)
		}
	}

	return nil
}

func parseRecordNotification(s string) (notifierID, recordID string) {
	before, after, _ := strings.Cut(s, recordSeparator)
	return before, after
}

func newRecordNotificationMessage(notifierID string, recordID string) string {
	return strings.Join([]string{notifierID, recordID}, recordSeparator)
}
