// Command authgate-demo runs the full session and device-trust flow
// headlessly against a backend (see cmd/facegate-stub for a local one).
// It restores any persisted session, logs in when credentials are provided,
// and walks whichever device-trust branch the backend routes it to.
package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	authgate "github.com/investaapp/authgate"
	"github.com/investaapp/authgate/storage"
)

type demoConfig struct {
	BaseURL   string `env:"AUTHGATE_BASE_URL" envDefault:"http://localhost:8477"`
	StateFile string `env:"AUTHGATE_STATE_FILE"`
	Document  string `env:"AUTHGATE_DOCUMENT"`
	Password  string `env:"AUTHGATE_PASSWORD"`
	PhotoPath string `env:"AUTHGATE_PHOTO"`
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	var cfg demoConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("parse environment")
	}
	if cfg.StateFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatal().Err(err).Msg("resolve home directory")
		}
		cfg.StateFile = filepath.Join(home, ".authgate", "state.json")
	}

	engineCfg := authgate.DefaultConfig()
	engineCfg.BaseURL = cfg.BaseURL
	engineCfg.Audit.Enabled = true

	engine, err := authgate.New().
		WithConfig(engineCfg).
		WithStore(storage.NewFileStore(cfg.StateFile)).
		WithLogger(log).
		WithAuditSink(authgate.NewZerologSink(log)).
		Build()
	if err != nil {
		log.Fatal().Err(err).Msg("build engine")
	}
	defer engine.Close()

	ctx := context.Background()

	snap, err := engine.Restore(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("session restore degraded")
	}
	logSnapshot(log, "after restore", snap)

	if !snap.IsAuthenticated {
		if cfg.Document == "" || cfg.Password == "" {
			log.Info().Msg("no session and no credentials; set AUTHGATE_DOCUMENT and AUTHGATE_PASSWORD")
			return
		}
		snap, err = engine.Login(ctx, cfg.Document, cfg.Password)
		if err != nil {
			log.Fatal().Err(err).Msg("login failed")
		}
		logSnapshot(log, "after login", snap)
	}

	switch snap.DevicePhase {
	case authgate.DeviceTrusted:
		log.Info().Msg("device already trusted, nothing to do")
		return
	case authgate.NeedsFaceRegistration:
		runPhotoStep(ctx, log, engine, cfg.PhotoPath, true)
	case authgate.NeedsDeviceValidation:
		runPhotoStep(ctx, log, engine, cfg.PhotoPath, false)
	default:
		log.Info().Str("phase", snap.DevicePhase.String()).Msg("no actionable device phase")
	}
}

func runPhotoStep(ctx context.Context, log zerolog.Logger, engine *authgate.Engine, photoPath string, register bool) {
	if photoPath == "" {
		log.Info().Bool("registration", register).Msg("photo required; set AUTHGATE_PHOTO")
		return
	}
	photo, err := os.Open(photoPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open photo")
	}
	defer photo.Close()
	filename := filepath.Base(photoPath)

	if register {
		enrollment, err := engine.RegisterFaceAndCompleteValidation(ctx, photo, filename)
		if err != nil {
			log.Fatal().Err(err).Msg("face registration failed")
		}
		if !enrollment.Registered {
			log.Warn().Str("message", enrollment.Message).Msg("face not registered")
			return
		}
	} else {
		validation, err := engine.SubmitPhotoValidation(ctx, photo, filename)
		if err != nil {
			log.Fatal().Err(err).Msg("photo validation failed")
		}
		if !validation.Validated {
			log.Warn().Float64("distance", validation.Distance).Msg("face did not match")
			return
		}
	}

	snap, err := engine.CompleteDeviceValidation(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("complete device validation")
	}
	logSnapshot(log, "after completion", snap)
}

func logSnapshot(log zerolog.Logger, stage string, snap authgate.Snapshot) {
	entry := log.Info().
		Str("stage", stage).
		Str("state", snap.State.String()).
		Str("device_phase", snap.DevicePhase.String()).
		Bool("authenticated", snap.IsAuthenticated).
		Bool("device_validated", snap.DeviceValidated)
	if snap.User != nil {
		entry = entry.Str("user", snap.User.Name).Str("person_id", snap.User.PersonID)
	}
	entry.Msg("session")
}
