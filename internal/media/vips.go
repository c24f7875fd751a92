package media

import (
	"fmt"
	"sync"

	"gif-converter/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

// InitVips initializes libvips. It is safe to call more than once; libvips
// cannot be restarted after ShutdownVips.
func InitVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	// Must run before Startup so libvips honours LOG_LEVEL from the first message
	handler, level := vipsLogging(logging.GetLevel())
	vips.LoggingSettings(handler, level)

	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      32 * 1024 * 1024,
		MaxCacheSize:     50,
		ReportLeaks:      false,
		CacheTrace:       false,
		CollectStats:     false,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized (version: %s)", vips.Version)
	return nil
}

// vipsLogging maps the application log level onto a libvips threshold and a
// handler that forwards into the application logger.
func vipsLogging(appLevel logging.LogLevel) (func(string, vips.LogLevel, string), vips.LogLevel) {
	forward := func(domain string, level vips.LogLevel, msg string) {
		switch level {
		case vips.LogLevelError, vips.LogLevelCritical:
			logging.Error("[%s] %s", domain, msg)
		case vips.LogLevelWarning:
			logging.Warn("[%s] %s", domain, msg)
		default:
			logging.Debug("[%s] %s", domain, msg)
		}
	}

	switch appLevel {
	case logging.LevelDebug:
		return forward, vips.LogLevelInfo
	case logging.LevelInfo:
		return forward, vips.LogLevelWarning
	case logging.LevelWarn:
		return forward, vips.LogLevelError
	case logging.LevelError:
		return forward, vips.LogLevelCritical
	default:
		return forward, vips.LogLevelWarning
	}
}

// ShutdownVips releases libvips resources.
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized.
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// inspectWithVips loads every page of the file so the animation frame count
// is known without decoding pixel data into Go memory.
func inspectWithVips(path string) (*SourceInfo, error) {
	params := vips.NewImportParams()
	params.NumPages.Set(-1)

	ref, err := vips.LoadImageFromFile(path, params)
	if err != nil {
		return nil, fmt.Errorf("vips failed to load image: %w", err)
	}
	defer ref.Close()

	if ref.Format() != vips.ImageTypeGIF {
		return nil, fmt.Errorf("%w: not a GIF image", ErrInvalidSource)
	}

	frames := ref.Pages()
	if frames < 1 {
		frames = 1
	}

	height := ref.PageHeight()
	if height <= 0 {
		height = ref.Height() / frames
	}

	return &SourceInfo{
		Frames: frames,
		Width:  ref.Width(),
		Height: height,
	}, nil
}
