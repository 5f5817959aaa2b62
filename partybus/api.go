package partybus

import (
	"context"
	"crypto/sha512"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/securecookie"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

const (
	apiPrefix             = "/api"
	apiHealthCheck        = "/healthz"
	apiPathLogin          = "/login"
	apiPathLogout         = "/logout"
	apiPathLoggedIn       = "/logged_in"
	apiPathProfiles       = "/profiles"
	apiPathUpdateProfile  = "/profile/:id"
	apiPathVenues         = "/venues"
	apiPathVenueSchedule  = "/venue/:id/schedule"
	apiPathJobs           = "/jobs"
	apiPathNotifyJob      = "/job/:id/notify"
	apiPathPause          = "/pause"
	apiPathResume         = "/resume"
	apiPathQuit           = "/quit"
	apiPathReloadProfiles = "/profiles/reload"
	apiPathCredentials    = "/credentials"

	xRequestIDHeader = "X-Request-ID"
	sessionVarName   = "admin"
	sessionVarField  = "username"
)

var structValidator = validator.New()

// API is the bot's backend admin server: session-authenticated endpoints
// for managing profiles, venues, job postings and the bot's runtime state.
type API struct {
	config     *APIConfig
	httpServer *http.Server
	engine     *gin.Engine
	store      sessions.Store
	logger     *slog.Logger
	bus        *PartyBus
}

func newAPI(b *PartyBus, config *APIConfig) (*API, error) {
	if config == nil {
		return nil, errors.New("nil API config")
	}

	secret := config.Secret
	if secret == "" {
		generated, err := generateRandomHexString(32)
		if err != nil {
			return nil, err
		}
		secret = generated
	}
	store := cookie.NewStore(
		derive64ByteKey(secret),
		securecookie.GenerateRandomKey(32),
	)
	store.Options(
		sessions.Options{
			Path:     apiPrefix,
			MaxAge:   int(config.SessionMaxAge.Seconds()),
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		},
	)

	logLevel := config.LogLevel
	if logLevel == nil {
		logLevel = newLevelVar(DefaultAPILogLevel)
	}
	handler := tint.NewHandler(
		os.Stdout,
		&tint.Options{Level: logLevel, AddSource: true},
	)
	a := &API{
		config: config,
		store:  store,
		bus:    b,
		logger: slog.New(handler).With(loggerNameKey, "api"),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(a.requestIDMiddleware())
	engine.Use(a.requestLogMiddleware())
	engine.Use(
		cors.New(
			cors.Config{
				AllowOrigins:     config.CORS.AllowOrigins,
				AllowMethods:     config.CORS.AllowMethods,
				AllowHeaders:     config.CORS.AllowHeaders,
				ExposeHeaders:    config.CORS.ExposeHeaders,
				AllowCredentials: config.CORS.AllowCredentials,
				MaxAge:           config.CORS.MaxAge,
			},
		),
	)
	engine.Use(sessions.Sessions(sessionVarName, store))
	a.engine = engine
	a.registerRoutes()

	a.httpServer = &http.Server{
		Addr:              config.Listen,
		Handler:           engine,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}
	return a, nil
}

// derive64ByteKey stretches the configured secret into cookie key material.
func derive64ByteKey(input string) []byte {
	hash := sha512.Sum512([]byte(input))
	return hash[:]
}

func (a *API) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(xRequestIDHeader)
		if requestID == "" {
			requestID, _ = generateRandomHexString(8)
		}
		c.Header(xRequestIDHeader, requestID)
		c.Next()
	}
}

func (a *API) requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", c.Writer.Header().Get(xRequestIDHeader)),
		)
	}
}

func (a *API) registerRoutes() {
	a.engine.GET(apiHealthCheck, a.handleHealthCheck)

	api := a.engine.Group(apiPrefix)
	api.POST(apiPathLogin, a.handleLogin)

	authed := api.Group("")
	authed.Use(a.requireAuth())
	authed.POST(apiPathLogout, a.handleLogout)
	authed.GET(apiPathLoggedIn, a.handleLoggedIn)
	authed.GET(apiPathProfiles, a.handleListProfiles)
	authed.PATCH(apiPathUpdateProfile, a.handleUpdateProfile)
	authed.POST(apiPathReloadProfiles, a.handleReloadProfiles)
	authed.GET(apiPathVenues, a.handleListVenues)
	authed.POST(apiPathVenues, a.handleCreateVenue)
	authed.PUT(apiPathVenueSchedule, a.handleReplaceVenueSchedule)
	authed.GET(apiPathJobs, a.handleListJobs)
	authed.POST(apiPathJobs, a.handleCreateJob)
	authed.POST(apiPathNotifyJob, a.handleNotifyJob)
	authed.POST(apiPathPause, a.handlePause)
	authed.POST(apiPathResume, a.handleResume)
	authed.POST(apiPathQuit, a.handleQuit)
	authed.PUT(apiPathCredentials, a.handleUpdateCredentials)
}

// Serve runs the HTTP server until ctx is canceled.
func (a *API) Serve(ctx context.Context) error {
	listener, err := net.Listen(defaultListenNetwork, a.config.Listen)
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", a.config.Listen, err)
	}
	a.logger.Info("admin api listening", "listen", a.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.httpServer.Serve(listener)
	}()

	select {
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), 5*time.Second,
		)
		defer cancel()
		return a.httpServer.Shutdown(shutdownCtx)
	}
}

func (a *API) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		username := session.Get(sessionVarField)
		if username == nil {
			c.AbortWithStatusJSON(
				http.StatusUnauthorized,
				gin.H{"error": "authentication required"},
			)
			return
		}
		c.Next()
	}
}

func (a *API) handleHealthCheck(c *gin.Context) {
	c.JSON(
		http.StatusOK, gin.H{
			"version":   Version,
			"paused":    a.bus.Paused(),
			"connected": a.bus.discord.connected.Load(),
		},
	)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (a *API) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings := a.bus.Settings()
	if settings == nil || settings.AdminUsername == "" || settings.AdminPassword == "" {
		c.JSON(
			http.StatusForbidden,
			gin.H{"error": "admin credentials are not set"},
		)
		return
	}
	if req.Username != settings.AdminUsername {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	ok, err := VerifyPassword(settings.AdminPassword, req.Password)
	if err != nil || !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	session := sessions.Default(c)
	session.Set(sessionVarField, req.Username)
	if err = session.Save(); err != nil {
		a.logger.Error("error saving session", tint.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": req.Username})
}

func (a *API) handleLogout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	_ = session.Save()
	c.Status(http.StatusNoContent)
}

func (a *API) handleLoggedIn(c *gin.Context) {
	session := sessions.Default(c)
	c.JSON(http.StatusOK, gin.H{"username": session.Get(sessionVarField)})
}

func (a *API) handleListProfiles(c *gin.Context) {
	var profiles []Profile
	err := a.bus.db.WithContext(c.Request.Context()).
		Preload("Windows").Find(&profiles).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, profiles)
}

type profileUpdateRequest struct {
	Posted        *bool     `json:"posted"`
	NSFWOptIn     *bool     `json:"nsfw_opt_in"`
	HomeRegions   *[]string `json:"home_regions"`
	Tags          *[]string `json:"tags"`
	MutedVenueIDs *[]string `json:"muted_venue_ids"`
}

func (a *API) handleUpdateProfile(c *gin.Context) {
	profileID := c.Param("id")
	profile := a.bus.writeDB.ReloadProfile(profileID)
	if profile == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}

	var req profileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]any{}
	if req.Posted != nil {
		updates[columnProfilePosted] = *req.Posted
	}
	if req.NSFWOptIn != nil {
		updates["nsfw_opt_in"] = *req.NSFWOptIn
	}
	if req.HomeRegions != nil {
		updates["home_regions"] = StringList(*req.HomeRegions)
	}
	if req.Tags != nil {
		updates["tags"] = StringList(*req.Tags)
	}
	if req.MutedVenueIDs != nil {
		updates["muted_venue_ids"] = StringList(*req.MutedVenueIDs)
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	ctx := c.Request.Context()
	if _, err := a.bus.writeDB.Updates(ctx, profile, updates); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	updated := a.bus.writeDB.ReloadProfile(profileID)
	a.bus.dbNotifier.ProfileUpdated(ctx, profileID)
	c.JSON(http.StatusOK, updated)
}

func (a *API) handleReloadProfiles(c *gin.Context) {
	a.bus.dbNotifier.ReloadProfileCache(c.Request.Context())
	c.Status(http.StatusAccepted)
}

func (a *API) handleListVenues(c *gin.Context) {
	var venues []Venue
	err := a.bus.db.WithContext(c.Request.Context()).
		Preload("Rules").Find(&venues).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, venues)
}

type venueCreateRequest struct {
	ID         string   `json:"id" binding:"required"`
	Name       string   `json:"name" binding:"required"`
	Region     string   `json:"region" binding:"required"`
	NSFW       bool     `json:"nsfw"`
	ManagerIDs []string `json:"manager_ids"`
}

func (a *API) handleCreateVenue(c *gin.Context) {
	var req venueCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	venue := &Venue{
		ID:         req.ID,
		Name:       req.Name,
		Region:     req.Region,
		NSFW:       req.NSFW,
		ManagerIDs: StringList(req.ManagerIDs),
	}
	if _, err := a.bus.writeDB.Create(c.Request.Context(), venue); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, venue)
}

type scheduleEntryRequest struct {
	Weekday     string `json:"weekday" binding:"required"`
	Open        string `json:"open" binding:"required"`
	Close       string `json:"close"`
	Interval    string `json:"interval" binding:"required,oneof=every_x_weeks every_xth_day_of_month"`
	IntervalArg int    `json:"interval_arg"`
}

// handleReplaceVenueSchedule swaps a venue's entire schedule - re-imports
// are always wholesale.
func (a *API) handleReplaceVenueSchedule(c *gin.Context) {
	venueID := c.Param("id")
	ctx := c.Request.Context()

	var venue Venue
	err := a.bus.db.WithContext(ctx).Where("id = ?", venueID).First(&venue).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "venue not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var entries []scheduleEntryRequest
	if err = c.ShouldBindJSON(&entries); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rules := make([]RecurrenceRule, 0, len(entries))
	for _, entry := range entries {
		rule, buildErr := buildRecurrenceRule(venueID, entry)
		if buildErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": buildErr.Error()})
			return
		}
		rules = append(rules, rule)
	}

	if err = a.bus.writeDB.ReplaceVenueSchedule(ctx, venueID, rules); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	a.bus.dbNotifier.ScheduleUpdated(ctx, venueID)
	c.JSON(http.StatusOK, rules)
}

func buildRecurrenceRule(venueID string, entry scheduleEntryRequest) (
	RecurrenceRule,
	error,
) {
	weekday, err := ParseWeekday(entry.Weekday)
	if err != nil {
		return RecurrenceRule{}, err
	}
	open, err := ParseTimeOfDay(entry.Open)
	if err != nil {
		return RecurrenceRule{}, err
	}
	switch IntervalType(entry.Interval) {
	case IntervalEveryXthDayOfMonth:
		if entry.IntervalArg == 0 {
			return RecurrenceRule{}, errors.New(
				"interval_arg must be a non-zero ordinal for monthly rules",
			)
		}
	default:
		if entry.IntervalArg < 0 {
			return RecurrenceRule{}, errors.New(
				"interval_arg must be >= 0 for weekly rules",
			)
		}
	}
	rule := RecurrenceRule{
		VenueID:     venueID,
		Weekday:     &weekday,
		Open:        &open,
		Interval:    IntervalType(entry.Interval),
		IntervalArg: entry.IntervalArg,
	}
	if entry.Close != "" {
		closeAt, closeErr := ParseTimeOfDay(entry.Close)
		if closeErr != nil {
			return RecurrenceRule{}, closeErr
		}
		rule.Close = &closeAt
	}
	return rule, nil
}

func (a *API) handleListJobs(c *gin.Context) {
	var jobs []JobPosting
	err := a.bus.db.WithContext(c.Request.Context()).Find(&jobs).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, jobs)
}

type jobCreateRequest struct {
	VenueID     string    `json:"venue_id" binding:"required"`
	Position    string    `json:"position" binding:"required"`
	Description string    `json:"description"`
	Start       time.Time `json:"start" binding:"required"`
	End         time.Time `json:"end" binding:"required,gtfield=Start"`
	Timezone    string    `json:"timezone"`
	Tags        []string  `json:"tags"`
	NSFW        bool      `json:"nsfw"`
}

func (a *API) handleCreateJob(c *gin.Context) {
	var req jobCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	var venue Venue
	err := a.bus.db.WithContext(ctx).Where("id = ?", req.VenueID).First(&venue).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "venue not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	job := NewJobPosting(venue.ID, req.Position, req.Start, req.End)
	job.Description = req.Description
	job.DisplayTimezoneLabel = req.Timezone
	job.Tags = StringList(req.Tags)
	job.NSFW = req.NSFW

	notified, err := a.bus.PostJob(ctx, job, &venue)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"job": job, "notified": notified})
}

func (a *API) handleNotifyJob(c *gin.Context) {
	jobID := c.Param("id")
	ctx := c.Request.Context()

	var job JobPosting
	err := a.bus.db.WithContext(ctx).Where("id = ?", jobID).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var venue Venue
	err = a.bus.db.WithContext(ctx).Where("id = ?", job.VenueID).First(&venue).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	notified := a.bus.NotifyJob(ctx, &job, &venue)
	c.JSON(http.StatusOK, gin.H{"notified": notified})
}

func (a *API) handlePause(c *gin.Context) {
	if err := a.bus.Pause(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleResume(c *gin.Context) {
	if err := a.bus.Resume(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleQuit(c *gin.Context) {
	c.Status(http.StatusAccepted)
	a.bus.dbNotifier.Stop(c.Request.Context())
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

func (a *API) handleUpdateCredentials(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	hashed, err := HashPassword(req.Password)
	if err != nil {
		a.logger.Error("error hashing password", tint.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash error"})
		return
	}
	err = a.bus.UpdateAdminCredentials(c.Request.Context(), req.Username, hashed)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": req.Username})
}
