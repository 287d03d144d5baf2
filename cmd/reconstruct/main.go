// Command reconstruct runs the offline trip reconstructor for one vehicle
// on demand, against the same database the server uses.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/drivelog/tripcore/internal/collaborators"
	"github.com/drivelog/tripcore/internal/config"
	"github.com/drivelog/tripcore/internal/connection"
	"github.com/drivelog/tripcore/internal/database"
	"github.com/drivelog/tripcore/internal/eventstore"
	"github.com/drivelog/tripcore/internal/logging"
	"github.com/drivelog/tripcore/internal/reconstruct"
	"github.com/drivelog/tripcore/internal/tripwriter"
)

func main() {
	userID := flag.String("user", "", "user ID that owns the vehicle connection")
	vin := flag.String("vin", "", "vehicle VIN to reconstruct")
	hours := flag.Int("hours", 24, "lookback window in hours")
	configPath := flag.String("config", "", "path to config YAML (optional)")
	flag.Parse()

	if *userID == "" || *vin == "" {
		log.Fatal("reconstruct: both -user and -vin are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("reconstruct: load config: %v", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.LogLevel)
	logger := logging.New(logCfg)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("reconstruct: connect database: %v", err)
	}

	events := eventstore.New(db)
	connections := connection.New(db)
	trips := collaborators.NewGormTripStore(db)
	writer := &tripwriter.Writer{
		Geocoder:    &collaborators.HTTPGeocoder{BaseURL: cfg.Collaborators.GeocoderURL, Logger: logger},
		RoadSnapper: &collaborators.HTTPRoadSnapper{BaseURL: cfg.Collaborators.RoadSnapperURL, Logger: logger},
		Vehicles:    collaborators.NewGormVehicleStore(db),
		Geofences:   collaborators.NewGormGeofenceStore(db),
		Trips:       trips,
	}

	r := &reconstruct.Reconstructor{
		Events:      events,
		Connections: connections,
		Trips:       trips,
		Writer:      writer,
		Logger:      logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := r.Run(ctx, *userID, *vin, *hours)
	if err != nil {
		log.Fatalf("reconstruct: %v", err)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Fprintln(os.Stdout, string(out))
	log.Printf("reconstruct: %d trip(s) created for vin=%s over the last %dh", result.TripsCreated, *vin, *hours)
}
