package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/pilot-availability/internal/availability"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

const maxBadgeLimit = 9

type Runtime struct {
	ConfigFile string

	PilotID    string
	WeekStart  time.Weekday
	Location   *time.Location
	BadgeLimit int
	Timeout    time.Duration

	RefreshCron string
	LogLevel    string

	DataDir   string
	StateDir  string
	MenuDir   string
	MenuPath  string
	MonthPath string
	ViewPath  string
}

func (r Runtime) Calendar() availability.Calendar {
	return availability.NewCalendar(r.WeekStart, r.Location)
}

func Load() (Runtime, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Runtime{}, fmt.Errorf("resolve home dir: %w", err)
	}

	xdgConfig := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}

	xdgState := strings.TrimSpace(os.Getenv("XDG_STATE_HOME"))
	if xdgState == "" {
		xdgState = filepath.Join(home, ".local", "state")
	}

	xdgData := strings.TrimSpace(os.Getenv("XDG_DATA_HOME"))
	if xdgData == "" {
		xdgData = filepath.Join(home, ".local", "share")
	}

	defaultConfig := filepath.Join(xdgConfig, "pilot-availability", "config.env")
	configFile := strings.TrimSpace(os.Getenv("PILOT_AVAILABILITY_CONFIG_FILE"))
	if configFile == "" {
		configFile = defaultConfig
	}

	if err := loadEnvFile(configFile); err != nil {
		return Runtime{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("PILOT_AVAILABILITY")
	v.AutomaticEnv()

	_ = v.BindEnv("pilot_id", "PILOT_AVAILABILITY_PILOT_ID", "PILOT_ID")
	_ = v.BindEnv("week_start", "PILOT_AVAILABILITY_WEEK_START", "WEEK_START")
	_ = v.BindEnv("timezone", "PILOT_AVAILABILITY_TIMEZONE", "TIMEZONE")
	_ = v.BindEnv("badge_limit", "PILOT_AVAILABILITY_BADGE_LIMIT", "BADGE_LIMIT")
	_ = v.BindEnv("timeout_seconds", "PILOT_AVAILABILITY_TIMEOUT_SECONDS")
	_ = v.BindEnv("refresh_cron", "PILOT_AVAILABILITY_REFRESH_CRON", "REFRESH_CRON")
	_ = v.BindEnv("log_level", "PILOT_AVAILABILITY_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("data_dir", "PILOT_AVAILABILITY_DATA_DIR")
	_ = v.BindEnv("state_dir", "PILOT_AVAILABILITY_STATE_DIR")
	_ = v.BindEnv("menu_dir", "PILOT_AVAILABILITY_MENU_DIR")

	v.SetDefault("week_start", "monday")
	v.SetDefault("timezone", "Local")
	v.SetDefault("badge_limit", 3)
	v.SetDefault("timeout_seconds", 20)
	v.SetDefault("refresh_cron", "*/5 * * * *")
	v.SetDefault("log_level", "info")
	v.SetDefault("data_dir", filepath.Join(xdgData, "pilot-availability"))
	v.SetDefault("state_dir", filepath.Join(xdgState, "pilot-availability"))
	v.SetDefault("menu_dir", filepath.Join(xdgState, "waybar", "menus"))

	weekStart, err := availability.ParseWeekStart(v.GetString("week_start"))
	if err != nil {
		return Runtime{}, err
	}

	location, err := loadLocation(v.GetString("timezone"))
	if err != nil {
		return Runtime{}, err
	}

	badgeLimit := v.GetInt("badge_limit")
	if badgeLimit < 1 {
		badgeLimit = 1
	}
	if badgeLimit > maxBadgeLimit {
		badgeLimit = maxBadgeLimit
	}

	timeoutSeconds := v.GetInt("timeout_seconds")
	if timeoutSeconds <= 0 {
		timeoutSeconds = 20
	}

	refreshCron := strings.TrimSpace(v.GetString("refresh_cron"))
	if refreshCron == "" {
		refreshCron = "*/5 * * * *"
	}

	dataDir := strings.TrimSpace(v.GetString("data_dir"))
	if dataDir == "" {
		dataDir = filepath.Join(xdgData, "pilot-availability")
	}

	stateDir := strings.TrimSpace(v.GetString("state_dir"))
	if stateDir == "" {
		stateDir = filepath.Join(xdgState, "pilot-availability")
	}

	menuDir := strings.TrimSpace(v.GetString("menu_dir"))
	if menuDir == "" {
		menuDir = filepath.Join(xdgState, "waybar", "menus")
	}

	return Runtime{
		ConfigFile:  configFile,
		PilotID:     strings.TrimSpace(v.GetString("pilot_id")),
		WeekStart:   weekStart,
		Location:    location,
		BadgeLimit:  badgeLimit,
		Timeout:     time.Duration(timeoutSeconds) * time.Second,
		RefreshCron: refreshCron,
		LogLevel:    strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
		DataDir:     dataDir,
		StateDir:    stateDir,
		MenuDir:     menuDir,
		MenuPath:    filepath.Join(menuDir, "pilot-availability.xml"),
		MonthPath:   filepath.Join(stateDir, "month.json"),
		ViewPath:    filepath.Join(stateDir, "view.json"),
	}, nil
}

func loadLocation(name string) (*time.Location, error) {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "", strings.EqualFold(trimmed, "local"):
		return time.Local, nil
	case strings.EqualFold(trimmed, "utc"):
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(trimmed)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", trimmed, err)
	}
	return loc, nil
}

// loadEnvFile exports KEY=VALUE pairs from path without overriding the
// real environment. A missing file is not an error.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat env file %s: %w", path, err)
	}

	file, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:     true,
		SkipUnrecognizableLines: true,
	}, path)
	if err != nil {
		return fmt.Errorf("parse env file %s: %w", path, err)
	}

	for _, key := range file.Section(ini.DefaultSection).Keys() {
		name := strings.TrimSpace(strings.TrimPrefix(key.Name(), "export "))
		if name == "" {
			continue
		}
		if _, exists := os.LookupEnv(name); exists {
			continue
		}
		_ = os.Setenv(name, strings.TrimSpace(key.String()))
	}
	return nil
}
