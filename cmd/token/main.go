// Command token issues an HS256 access token for a user id, for local
// development and smoke tests.
//
//	token -user alice [-ttl 2h]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/iliyamo/tee-time-reservation/internal/utils"
)

type tokenConfig struct {
	Secret string `env:"JWT_SECRET,required"`
	TTLMin int    `env:"ACCESS_TOKEN_TTL_MIN" envDefault:"60"`
}

func main() {
	_ = godotenv.Load()

	var cfg tokenConfig
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "parse env: %v\n", err)
		os.Exit(2)
	}

	var userID string
	var ttl time.Duration
	var asJSON bool
	flag.StringVar(&userID, "user", "", "user id to place in the sub claim")
	flag.DurationVar(&ttl, "ttl", time.Duration(cfg.TTLMin)*time.Minute, "token lifetime")
	flag.BoolVar(&asJSON, "json", false, "print token and expiry as JSON")
	flag.Parse()

	if userID == "" {
		flag.Usage()
		os.Exit(2)
	}

	tok, err := utils.NewAccessToken(cfg.Secret, userID, ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if asJSON {
		_ = json.NewEncoder(os.Stdout).Encode(tok)
		return
	}
	fmt.Println(tok.Token)
}
