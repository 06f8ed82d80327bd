package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gones/internal/cartridge"
	"gones/internal/graphics"
	"gones/internal/input"
	"gones/internal/logger"
	"gones/internal/system"
)

// Application owns the configuration, the loaded cartridge, the running
// system, and the graphics backend it is presented through.
type Application struct {
	config    *Config
	cart      *cartridge.Cartridge
	sys       *system.System
	processor *graphics.VideoProcessor
	backend   graphics.Backend
	window    graphics.Window

	romPath    string
	startTime  time.Time
	frameCount uint64
}

// NewApplicationWithMode loads configuration from configPath and prepares a
// graphics backend. When headless is true the backend is forced to
// "headless" regardless of what the config file says.
func NewApplicationWithMode(configPath string, headless bool) (*Application, error) {
	cfg := NewConfig()
	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if headless {
		cfg.Video.Backend = "headless"
	}

	backend, err := graphics.CreateBackend(graphics.BackendType(cfg.Video.Backend))
	if err != nil {
		return nil, fmt.Errorf("creating graphics backend: %w", err)
	}

	gfxConfig := graphics.Config{
		WindowTitle:  "gones",
		WindowWidth:  cfg.Window.Width,
		WindowHeight: cfg.Window.Height,
		Fullscreen:   cfg.Window.Fullscreen,
		VSync:        cfg.Video.VSync,
		Filter:       cfg.Video.Filter,
		AspectRatio:  cfg.Video.AspectRatio,
		Headless:     cfg.Video.Backend == "headless",
		Debug:        cfg.Debug.ShowDebugInfo,
	}
	if err := backend.Initialize(gfxConfig); err != nil {
		return nil, fmt.Errorf("initializing graphics backend: %w", err)
	}

	return &Application{
		config:    cfg,
		backend:   backend,
		processor: graphics.NewVideoProcessor(cfg.Video.Brightness, cfg.Video.Contrast, cfg.Video.Saturation),
		startTime: time.Now(),
	}, nil
}

// GetConfig returns the application's configuration.
func (a *Application) GetConfig() *Config { return a.config }

// LoadROM loads a cartridge from disk and builds the system around it. Any
// previously running system is discarded.
func (a *Application) LoadROM(path string) error {
	cart, err := cartridge.Load(path)
	if err != nil {
		return fmt.Errorf("loading cartridge: %w", err)
	}

	if a.config.Emulation.AutoSaveRAM {
		if data, err := os.ReadFile(a.saveRAMPath(path)); err == nil {
			cart.LoadRAM(data)
		}
	}

	a.cart = cart
	a.sys = system.New(cart, a.onFrame)
	a.romPath = path
	a.frameCount = 0

	logger.Infof("app: loaded %s", path)
	return nil
}

func (a *Application) saveRAMPath(romPath string) string {
	return filepath.Join(a.config.Paths.SaveData, filepath.Base(romPath)+".sav")
}

// onFrame is invoked by the system once per rendered frame.
func (a *Application) onFrame(snapshot system.FrameSnapshot) {
	a.frameCount++

	if a.window == nil {
		return
	}

	pixels := a.processor.ProcessFrame(snapshot.Pixels[:])
	var frameBuffer [256 * 240]uint32
	copy(frameBuffer[:], pixels)

	if err := a.window.RenderFrame(frameBuffer); err != nil {
		logger.Warnf("app: render frame failed: %v", err)
	}
}

// GetBus exposes the running system for callers (e.g. headless drivers)
// that need direct step-by-step control.
func (a *Application) GetBus() *system.System { return a.sys }

// GetFrameCount returns the number of frames rendered so far.
func (a *Application) GetFrameCount() uint64 { return a.frameCount }

// GetUptime returns how long the application has been running.
func (a *Application) GetUptime() time.Duration { return time.Since(a.startTime) }

// GetFPS returns the average frames-per-second since startup.
func (a *Application) GetFPS() float64 {
	elapsed := a.GetUptime().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(a.frameCount) / elapsed
}

// ApplyDebugSettings reconfigures the logger level from the current config.
func (a *Application) ApplyDebugSettings() {
	if a.config.Debug.EnableLogging {
		logger.SetLevel(logger.LevelFromString(a.config.Debug.LogLevel))
	} else {
		logger.SetLevel(logger.LevelError)
	}
}

// Run drives the GUI main loop until the window closes. For the headless
// backend, Run instead steps the system directly since there is no window
// event loop to drive it.
func (a *Application) Run() error {
	if a.sys == nil {
		return fmt.Errorf("no ROM loaded")
	}

	windowWidth, windowHeight := a.config.GetWindowResolution()
	window, err := a.backend.CreateWindow("gones", windowWidth, windowHeight)
	if err != nil {
		if a.backend.IsHeadless() {
			return a.runHeadless()
		}
		return fmt.Errorf("creating window: %w", err)
	}
	a.window = window

	if a.backend.IsHeadless() {
		return a.runHeadless()
	}

	return a.runGUI(window)
}

func (a *Application) runHeadless() error {
	targetFrames := uint64(120)
	for a.frameCount < targetFrames {
		a.sys.Step()
	}
	return nil
}

func (a *Application) runGUI(window graphics.Window) error {
	type runner interface {
		Run() error
		SetEmulatorUpdateFunc(func() error)
	}

	r, ok := window.(runner)
	if !ok {
		return fmt.Errorf("graphics backend %s does not support a GUI run loop", a.backend.GetName())
	}

	r.SetEmulatorUpdateFunc(func() error {
		a.pumpEvents(window)

		cyclesPerFrame := uint64(29780)
		var executed uint64
		for executed < cyclesPerFrame {
			executed += a.sys.Step()
		}
		return nil
	})

	return r.Run()
}

func (a *Application) pumpEvents(window graphics.Window) {
	for _, event := range window.PollEvents() {
		if event.Type == graphics.InputEventTypeQuit {
			if err := a.Cleanup(); err != nil {
				logger.Warnf("app: cleanup on quit failed: %v", err)
			}
			os.Exit(0)
		}
		if event.Type != graphics.InputEventTypeButton {
			continue
		}
		a.applyButtonEvent(event)
	}
}

func (a *Application) applyButtonEvent(event graphics.InputEvent) {
	port, button, ok := mapGraphicsButton(event.Button)
	if !ok {
		return
	}
	a.sys.SetButton(port, button, event.Pressed)
}

func mapGraphicsButton(b graphics.Button) (port int, button input.Button, ok bool) {
	switch b {
	case graphics.ButtonA:
		return 1, input.ButtonA, true
	case graphics.ButtonB:
		return 1, input.ButtonB, true
	case graphics.ButtonSelect:
		return 1, input.ButtonSelect, true
	case graphics.ButtonStart:
		return 1, input.ButtonStart, true
	case graphics.ButtonUp:
		return 1, input.ButtonUp, true
	case graphics.ButtonDown:
		return 1, input.ButtonDown, true
	case graphics.ButtonLeft:
		return 1, input.ButtonLeft, true
	case graphics.ButtonRight:
		return 1, input.ButtonRight, true
	case graphics.Button2A:
		return 2, input.ButtonA, true
	case graphics.Button2B:
		return 2, input.ButtonB, true
	case graphics.Button2Select:
		return 2, input.ButtonSelect, true
	case graphics.Button2Start:
		return 2, input.ButtonStart, true
	case graphics.Button2Up:
		return 2, input.ButtonUp, true
	case graphics.Button2Down:
		return 2, input.ButtonDown, true
	case graphics.Button2Left:
		return 2, input.ButtonLeft, true
	case graphics.Button2Right:
		return 2, input.ButtonRight, true
	default:
		return 0, 0, false
	}
}

// Cleanup persists battery-backed SaveRAM (if enabled) and releases the
// graphics backend.
func (a *Application) Cleanup() error {
	if a.cart != nil && a.config.Emulation.AutoSaveRAM {
		if data := a.cart.SaveRAM(); data != nil {
			if err := os.MkdirAll(a.config.Paths.SaveData, 0755); err == nil {
				_ = os.WriteFile(a.saveRAMPath(a.romPath), data, 0644)
			}
		}
	}

	if a.window != nil {
		if err := a.window.Cleanup(); err != nil {
			return err
		}
	}
	return a.backend.Cleanup()
}

