package commands

import (
	"context"
	"database/sql"
	"fmt"

	"mediapart-bills/internal/billstore"
	"mediapart-bills/internal/components/chrono"
	"mediapart-bills/internal/db"
	"mediapart-bills/internal/scrapers/mediapart"
	"mediapart-bills/pkg/configutil"
)

type DBConfig struct {
	// File is a local sqlite database, it is used when Url is empty.
	File string `json:"file"`
	// Url is a remote libsql database.
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

type UrlsConfig struct {
	Site    string `json:"site"`
	Account string `json:"account"`
}

type Config struct {
	Login      string     `json:"login"`
	Password   string     `json:"password"`
	FolderPath string     `json:"folder_path"`
	Db         DBConfig   `json:"db"`
	BaseUrls   UrlsConfig `json:"base_urls"`
	// Schedule is the cron expression the daemon syncs on.
	Schedule          string  `json:"schedule"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}

func readConfig() (Config, error) {
	cfg, err := configutil.ReadConfig[Config](*configName)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if cfg.FolderPath == "" {
		cfg.FolderPath = "bills"
	}
	if cfg.Db.File == "" {
		cfg.Db.File = "bills.db"
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 6 * * *"
	}
	return cfg, nil
}

func (c Config) urls() (mediapart.Urls, error) {
	defaults := mediapart.DefaultUrls()
	site := c.BaseUrls.Site
	if site == "" {
		site = defaults.Login.String()
	}
	account := c.BaseUrls.Account
	if account == "" {
		account = defaults.Account.String()
	}
	return mediapart.NewUrls(site, account)
}

func (c DBConfig) open(ctx context.Context) (*sql.DB, error) {
	var sqldb *sql.DB
	var err error
	if c.Url != "" {
		sqldb, err = db.OpenLibsql(c.Url, c.AuthToken)
	} else {
		sqldb, err = db.OpenDB(c.File)
	}
	if err != nil {
		return nil, err
	}
	err = db.Migrate(ctx, sqldb)
	if err != nil {
		sqldb.Close()
		return nil, err
	}
	return sqldb, nil
}

func openStore(ctx context.Context, cfg Config) (billstore.Store, func() error, error) {
	sqldb, err := cfg.Db.open(ctx)
	if err != nil {
		return billstore.Store{}, nil, err
	}
	return billstore.NewStore(sqldb, chrono.NewStandardImpl(), tel), sqldb.Close, nil
}
