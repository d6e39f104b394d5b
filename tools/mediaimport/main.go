package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"

	"mediatrack/config"
	"mediatrack/services/library"
)

// mediaimport loads a tracking sheet CSV export into a profile's library
// without going through the HTTP API. Useful for first-time migration of
// large sheets.
func main() {
	var (
		configPath = flag.String("config", "cache/settings.json", "Path to backend settings.json")
		csvPath    = flag.String("csv", "", "Path to the CSV export to import")
		profileID  = flag.String("profile", "default", "Profile to import into")
	)
	flag.Parse()

	_ = godotenv.Load()

	if *csvPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	mgr := config.NewManager(*configPath)
	settings, err := mgr.Load()
	if err != nil {
		log.Fatalf("load settings: %v", err)
	}

	svc, err := library.NewService(settings.Library.DatabasePath)
	if err != nil {
		log.Fatalf("open library: %v", err)
	}
	defer svc.Close()

	fs := afero.NewOsFs()
	f, err := fs.Open(*csvPath)
	if err != nil {
		log.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		log.Fatalf("stat csv: %v", err)
	}

	bar := progressbar.NewOptions64(info.Size(),
		progressbar.OptionSetDescription("importing"),
		progressbar.OptionShowBytes(true),
		progressbar.OptionClearOnFinish(),
	)

	reader := progressbar.NewReader(f, bar)
	imported, err := svc.ReadCSV(context.Background(), *profileID, &reader)
	if err != nil {
		log.Fatalf("import failed after %d rows: %v", imported, err)
	}

	fmt.Printf("imported %d items into profile %s\n", imported, *profileID)
}
