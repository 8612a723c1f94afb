package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog    zerolog.Logger
	diagFile   *os.File
	uploadFile *os.File
	logMu      sync.Mutex
	logReady   bool
	pid        int
	dir        string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		if !filepath.IsAbs(flagPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, flagPath), nil
		}
		return flagPath, nil
	}

	// Priority 2: KIKU_LOG_PATH environment variable
	envPath := os.Getenv("KIKU_LOG_PATH")
	if envPath != "" {
		if !filepath.IsAbs(envPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, envPath), nil
		}
		return envPath, nil
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	uploadPath := filepath.Join(dir, "upload_log.txt")
	uploadFile, err = os.OpenFile(uploadPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if uploadFile != nil {
		uploadFile.Close()
		uploadFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// UploadMetrics records one accepted upload in the diagnostics stream and
// appends the slot to the plain-text upload log, which doubles as the
// operator's record of what the server has confirmed.
func UploadMetrics(slotKey string, sizeBytes int64, total time.Duration) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("slot", slotKey).
		Float64("size_kb", float64(sizeBytes)/1024).
		Float64("total_ms", float64(total.Milliseconds())).
		Msg("upload")

	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\t%d\n", time.Now().Format("2006-01-02 15:04:05"), pid, slotKey, sizeBytes)
	uploadFile.WriteString(line)
}

// DrainResult records the aggregate outcome of one drain pass.
func DrainResult(success, failure int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("success", success).
		Int("failure", failure).
		Msg("drain")
}

func SessionStart(device, server string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("device", device).
		Str("server", server).
		Msg("session_start")
}

func SessionEnd(uploads int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("uploads", uploads).
		Msg("session_end")
}
