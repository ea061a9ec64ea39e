package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/soniqlabs/meetbot/pkg/auth"
	"github.com/soniqlabs/meetbot/pkg/http/rest"
	"github.com/soniqlabs/meetbot/pkg/joiner"
	"github.com/soniqlabs/meetbot/pkg/mail"
	"github.com/soniqlabs/meetbot/pkg/meeting"
	"github.com/soniqlabs/meetbot/pkg/recording"
	"github.com/soniqlabs/meetbot/pkg/scheduler"
	"github.com/soniqlabs/meetbot/pkg/session"
	"github.com/soniqlabs/meetbot/pkg/store"
	"github.com/soniqlabs/meetbot/pkg/stream"
	"github.com/soniqlabs/meetbot/pkg/upload"
)

func getEnv(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	secs, err := strconv.Atoi(val)
	if err != nil || secs <= 0 {
		log.Warnf("invalid duration, using default | key: %s, value: %s", key, val)
		return fallback
	}
	return time.Duration(secs) * time.Second
}

func main() {
	// Get env variables
	port := getEnv("APP_PORT", "8888")
	baseURL := getEnv("BASE_URL", "http://localhost:"+port)
	logLevel := os.Getenv("LOG_LEVEL")
	webhookUrls := os.Getenv("WEBHOOK_URLS")

	// Get log verbosity
	var verbosity log.Lvl
	switch strings.ToLower(logLevel) {
	case "debug":
		verbosity = log.DEBUG
	case "warn":
		verbosity = log.WARN
	case "error":
		verbosity = log.ERROR
	case "info":
		fallthrough
	default:
		verbosity = log.INFO
	}
	log.SetLevel(verbosity)
	log.SetHeader("(${short_file}:${line}) ${time_rfc3339} ${level}: ")

	// Separate the webhooks by comma
	var webhooks = []string{}
	if webhookUrls != "" {
		webhooks = strings.Split(webhookUrls, ",")
	}

	// Ensure the working directories exist
	transcriptsDir := getEnv("TRANSCRIPTS_DIR", "transcripts")
	recordingsDir := getEnv("RECORDINGS_DIR", "recordings")
	credentialsDir := getEnv("CREDENTIALS_DIR", "credentials")
	for _, dir := range []string{transcriptsDir, recordingsDir, credentialsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal(err)
		}
	}

	// Create S3 uploader only if the environment variables are not empty
	s3Region := os.Getenv("S3_REGION")
	s3Bucket := os.Getenv("S3_BUCKET")
	var uploader upload.Uploader
	if s3Region != "" && s3Bucket != "" {
		var err error
		uploader, err = upload.NewS3Uploader(upload.S3Config{
			Region:    s3Region,
			Bucket:    s3Bucket,
			Directory: os.Getenv("S3_DIRECTORY"),
		})
		if err != nil {
			log.Fatal(err)
		}
		log.Infof("s3 uploads enabled | bucket: %s, region: %s", s3Bucket, s3Region)
	} else {
		log.Warn("S3_REGION or S3_BUCKET not set, artifacts stay on local disk")
	}

	// Postgres when DATABASE_URL is set, otherwise a local JSON database
	var (
		db  store.Store
		err error
	)
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err = store.NewPostgres(dsn)
		if err != nil {
			log.Fatal(err)
		}
		log.Info("meeting store: postgres")
	} else {
		db, err = store.NewJSONFile(getEnv("MEETING_DB_PATH", "data/meeting_database.json"))
		if err != nil {
			log.Fatal(err)
		}
		log.Info("meeting store: local json file")
	}
	defer db.Close()

	// OAuth manager for the calendar sources
	manager := auth.NewManager(credentialsDir,
		auth.Credentials{
			ClientID:     os.Getenv("GMAIL_CLIENT_ID"),
			ClientSecret: os.Getenv("GMAIL_CLIENT_SECRET"),
			RedirectURL:  baseURL + "/auth/gmail/callback",
		},
		auth.Credentials{
			ClientID:     os.Getenv("OUTLOOK_CLIENT_ID"),
			ClientSecret: os.Getenv("OUTLOOK_CLIENT_SECRET"),
			TenantID:     os.Getenv("OUTLOOK_TENANT_ID"),
			RedirectURL:  baseURL + "/auth/outlook/callback",
		})

	sources := []mail.Source{mail.NewGmail(manager), mail.NewOutlook(manager)}

	// Screen recorder; optional, the bot still transcribes without ffmpeg
	recorder := recording.NewRecorder(recording.Config{
		Display:   getEnv("DISPLAY", ":99"),
		OutputDir: recordingsDir,
	})
	if !recorder.Available() {
		log.Warn("ffmpeg not found, screen recording disabled")
	}

	hub := stream.NewHub()

	// Session service drives the browser bot
	sessions := session.NewService(session.Deps{
		Recorder:      recorder,
		Hub:           hub,
		Uploader:      uploader,
		Store:         db,
		Webhooks:      webhooks,
		TranscriptDir: transcriptsDir,
		JoinerOptions: joiner.Options{
			BotName: getEnv("BOT_NAME", "Meeting Assistant"),
		},
	})

	// Scheduler polls the calendar sources and triggers joins
	sched := scheduler.New(scheduler.Options{
		PollInterval: getEnvDuration("POLL_INTERVAL_SECONDS", 40*time.Second),
	}, scheduler.Callbacks{
		Poll: func(ctx context.Context, lookahead time.Duration) ([]meeting.Meeting, error) {
			var found []meeting.Meeting
			for _, src := range sources {
				if !src.Authenticated() {
					continue
				}
				meetings, err := src.Meetings(ctx, lookahead)
				if err != nil {
					log.Errorf("poll failed | provider: %s, error: %v", src.Provider(), err)
					continue
				}
				found = append(found, meetings...)
			}
			return meeting.Deduplicate(found), nil
		},
		OnJoin: func(ctx context.Context, m meeting.Meeting) {
			if err := sessions.JoinScheduled(ctx, m); err != nil {
				log.Errorf("scheduled join failed | title: %s, error: %v", m.Title, err)
			}
		},
		OnEnd: func(ctx context.Context, m meeting.Meeting) {
			for _, sess := range sessions.Sessions() {
				if sess.Meeting.ID == m.ID && sess.Active() {
					if err := sessions.Leave(ctx, sess.SessionID); err != nil {
						log.Warnf("scheduled leave failed | title: %s, error: %v", m.Title, err)
					}
				}
			}
		},
	})
	sched.Start()

	// First poll right away so startup does not wait a full interval.
	go func() {
		if _, err := sched.PollNow(context.Background()); err != nil {
			log.Errorf("initial poll failed | error: %v", err)
		}
	}()

	// Initialise controllers
	botController := rest.NewBotController(sessions, sched, db, manager)
	authController := rest.NewAuthController(manager)
	streamController := rest.NewStreamController(hub)

	// Initialise server
	e := echo.New()
	e.HideBanner = true

	// Attach middlewares
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "(${host}) ${time_rfc3339} ${level}: ${method} ${uri} ${status} ${error}\n",
	}))
	e.Use(middleware.Recover())

	// Attach handlers
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "Meeting bot is running")
	})
	e.GET("/health", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	// OAuth flows
	e.GET("/auth/status", authController.Status)
	e.GET("/auth/gmail/start", authController.StartAuth(auth.ProviderGmail))
	e.GET("/auth/gmail/callback", authController.Callback)
	e.GET("/auth/outlook/start", authController.StartAuth(auth.ProviderOutlook))
	e.GET("/auth/outlook/callback", authController.Callback)

	// Bot API
	e.POST("/api/join", botController.JoinMeeting)
	e.GET("/api/status", botController.Status)
	e.GET("/api/sessions", botController.ListSessions)
	e.DELETE("/api/sessions/:id", botController.EndSession)
	e.GET("/api/meetings", botController.ListMeetings)
	e.POST("/api/poll", botController.Poll)

	// Live transcript stream
	e.GET("/ws/transcripts", streamController.Transcripts)

	// Start server; shut the bot down cleanly on SIGINT/SIGTERM
	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	sched.Stop()
	sessions.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error(err)
	}
}
