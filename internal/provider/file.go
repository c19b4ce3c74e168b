package provider

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"fiado_cache/internal/config"
	"fiado_cache/internal/obs"
)

const defaultDebounce = 100 * time.Millisecond

type File struct {
	Path     string
	Logger   obs.Logger
	Debounce time.Duration
}

func NewFileProvider(path string, logger obs.Logger) *File {
	if logger == nil {
		logger = obs.NopLogger{}
	}
	return &File{Path: path, Logger: logger}
}

func (f *File) Name() string {
	return "file"
}

// Load reads the file and applies FIADO_* environment overrides. With no
// path the config comes from the environment alone.
func (f *File) Load(ctx context.Context) (*config.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, errors.New("file provider is nil")
	}
	return config.Load(f.Path)
}

// Watch reloads the file whenever it changes and hands every config that
// parses and validates to onChange. The parent directory is watched so
// that editors replacing the file by rename are seen. Watch blocks until
// ctx is done.
func (f *File) Watch(ctx context.Context, onChange func(context.Context, *config.Config)) error {
	if f == nil || f.Path == "" {
		return errors.New("watch requires a config path")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	target := filepath.Clean(f.Path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}

	debounce := f.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger().Warn("config watch error", obs.Fields{"path": f.Path, "error": err.Error()})
		case <-timer.C:
			f.reload(ctx, onChange)
		}
	}
}

func (f *File) reload(ctx context.Context, onChange func(context.Context, *config.Config)) {
	cfg, err := f.Load(ctx)
	if err != nil {
		f.logger().Warn("config reload rejected", obs.Fields{"path": f.Path, "error": err.Error()})
		return
	}
	warnings, err := config.Validate(cfg)
	if err != nil {
		f.logger().Warn("config reload rejected", obs.Fields{"path": f.Path, "error": err.Error()})
		return
	}
	for _, warning := range warnings {
		f.logger().Warn("config warning", obs.Fields{"path": f.Path, "warning": warning})
	}
	onChange(ctx, cfg)
}

func (f *File) logger() obs.Logger {
	if f.Logger == nil {
		return obs.NopLogger{}
	}
	return f.Logger
}
