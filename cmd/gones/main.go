// Package main implements the gones NES emulator executable.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gones/internal/app"
	"gones/internal/version"
)

func main() {
	var (
		romFile    = flag.String("rom", "", "Path to NES ROM file (required in GUI and headless mode)")
		configFile = flag.String("config", "", "Path to configuration file")
		debug      = flag.Bool("debug", false, "Enable debug mode")
		nogui      = flag.Bool("nogui", false, "Run without GUI (headless mode)")
		help       = flag.Bool("help", false, "Show help message")
		showVer    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *help {
		printUsage()
		os.Exit(0)
	}

	if *showVer {
		version.PrintBuildInfo()
		os.Exit(0)
	}

	setupGracefulShutdown()

	configPath := *configFile
	if configPath == "" {
		configPath = app.GetDefaultConfigPath()
	}

	application, err := app.NewApplicationWithMode(configPath, *nogui)
	if err != nil {
		log.Fatalf("failed to create application: %v", err)
	}
	defer func() {
		if err := application.Cleanup(); err != nil {
			log.Printf("application cleanup error: %v", err)
		}
	}()

	if *debug {
		application.GetConfig().UpdateDebug(true, true, true)
		application.ApplyDebugSettings()
	}

	if *romFile != "" {
		if err := application.LoadROM(*romFile); err != nil {
			log.Fatalf("failed to load ROM: %v", err)
		}
	}

	if *nogui {
		if *romFile == "" {
			log.Fatal("ROM file required for headless mode")
		}
		if err := application.Run(); err != nil {
			log.Fatalf("headless run failed: %v", err)
		}
		fmt.Printf("rendered %d frames in %v (%.1f fps)\n",
			application.GetFrameCount(), application.GetUptime(), application.GetFPS())
		return
	}

	if err := application.Run(); err != nil {
		log.Fatalf("GUI mode failed: %v", err)
	}
}

// setupGracefulShutdown exits cleanly on SIGINT/SIGTERM so deferred cleanup
// (SaveRAM persistence, backend teardown) still runs.
func setupGracefulShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		os.Exit(0)
	}()
}

func printUsage() {
	fmt.Println("gones - Go NES Emulator")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  gones [options]                    # Without -rom: exits with \"no ROM loaded\"")
	fmt.Println("  gones -rom <file> [options]        # Start with ROM loaded")
	fmt.Println("  gones -nogui -rom <file> [options] # Run headless mode")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("CONTROLS (Default):")
	fmt.Println("  Arrow Keys / WASD - D-Pad")
	fmt.Println("  J / Z             - A Button")
	fmt.Println("  K / X             - B Button")
	fmt.Println("  Enter             - Start")
	fmt.Println("  Space             - Select")
	fmt.Println("  Escape            - Quit")
	fmt.Println()
	fmt.Println("SUPPORTED MAPPERS:")
	fmt.Println("  NROM (0), MMC1 (1), UxROM (2), CNROM (3), MMC3 (4)")
}
