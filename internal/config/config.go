package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type DB struct {
	Host string
	Port int
	User string
	Pass string
	Name string
}

type MQ struct {
	Host string
	Port int
	User string
	Pass string
}

type Display struct {
	ScreenID        int
	ConfigID        int
	PollIntervalSec int
}

type App struct {
	Database DB
	Rabbit   MQ
	Display  Display
}

// Load reads a two-level YAML file (no external YAML package, same shape
// the deploy configs use) and then applies environment overrides. A .env
// file next to the binary is honored if present.
func Load(path string) (App, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return App{}, err
	}
	a := App{Display: Display{PollIntervalSec: 20}}
	var cur string
	for _, ln := range strings.Split(string(b), "\n") {
		line := strings.TrimSpace(ln)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasSuffix(line, ":") {
			cur = strings.TrimSuffix(line, ":")
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		k := strings.TrimSpace(parts[0])
		v := strings.Trim(strings.TrimSpace(parts[1]), `"`)
		switch cur {
		case "database":
			assignDB(&a.Database, k, v)
		case "rabbitmq":
			assignMQ(&a.Rabbit, k, v)
		case "display":
			assignDisplay(&a.Display, k, v)
		}
	}
	applyEnv(&a)
	if a.Database.Host == "" || a.Rabbit.Host == "" {
		return App{}, errors.New("invalid config: missing database/rabbitmq host")
	}
	return a, nil
}

func assignDB(d *DB, k, v string) {
	switch k {
	case "host":
		d.Host = v
	case "port":
		d.Port = atoiSafe(v)
	case "user":
		d.User = v
	case "password":
		d.Pass = v
	case "database":
		d.Name = v
	}
}

func assignMQ(m *MQ, k, v string) {
	switch k {
	case "host":
		m.Host = v
	case "port":
		m.Port = atoiSafe(v)
	case "user":
		m.User = v
	case "password":
		m.Pass = v
	}
}

func assignDisplay(d *Display, k, v string) {
	switch k {
	case "screen_id":
		d.ScreenID = atoiSafe(v)
	case "config_id":
		d.ConfigID = atoiSafe(v)
	case "poll_interval_seconds":
		d.PollIntervalSec = atoiSafe(v)
	}
}

// applyEnv lets deployment override file values without editing the YAML.
func applyEnv(a *App) {
	_ = godotenv.Load()
	if v := os.Getenv("KD_DB_HOST"); v != "" {
		a.Database.Host = v
	}
	if v := os.Getenv("KD_DB_PORT"); v != "" {
		a.Database.Port = atoiSafe(v)
	}
	if v := os.Getenv("KD_DB_USER"); v != "" {
		a.Database.User = v
	}
	if v := os.Getenv("KD_DB_PASSWORD"); v != "" {
		a.Database.Pass = v
	}
	if v := os.Getenv("KD_DB_NAME"); v != "" {
		a.Database.Name = v
	}
	if v := os.Getenv("KD_MQ_HOST"); v != "" {
		a.Rabbit.Host = v
	}
	if v := os.Getenv("KD_MQ_PORT"); v != "" {
		a.Rabbit.Port = atoiSafe(v)
	}
	if v := os.Getenv("KD_MQ_USER"); v != "" {
		a.Rabbit.User = v
	}
	if v := os.Getenv("KD_MQ_PASSWORD"); v != "" {
		a.Rabbit.Pass = v
	}
	if v := os.Getenv("KD_SCREEN_ID"); v != "" {
		a.Display.ScreenID = atoiSafe(v)
	}
	if v := os.Getenv("KD_CONFIG_ID"); v != "" {
		a.Display.ConfigID = atoiSafe(v)
	}
}

func atoiSafe(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func FindConfig() (string, error) {
	candidates := []string{"config.yaml", "deploy/config.example.yaml"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}
