package frontend

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jghoshh/missioncenter/frontend/client"
	"github.com/jghoshh/missioncenter/frontend/cmd"
	"github.com/joho/godotenv"
)

// Config holds the shell settings read from the environment.
type Config struct {
	ServerURL      string        `env:"SERVER_URL" envDefault:"http://localhost:8080"`
	KeyringKey     string        `env:"AUTH_TOKEN" envDefault:"missioncenter_token"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
}

// RunFrontend loads the shell configuration and runs the interactive shell.
func RunFrontend() {
	if err := godotenv.Load("frontend/.env"); err != nil {
		log.Println("No frontend/.env file loaded, using environment variables")
	}

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error reading configuration: %v", err)
	}

	cmd.InitCmd(client.New(cfg.ServerURL, cfg.KeyringKey), cfg.RequestTimeout)
	cmd.Execute()
}
