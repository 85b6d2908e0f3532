// Command seed inserts the sample users into the store.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/npezzotti/go-groupchat/internal/api"
	"github.com/npezzotti/go-groupchat/internal/config"
	"github.com/npezzotti/go-groupchat/internal/database"
)

var sampleUsers = []database.CreateUserParams{
	{UserId: "100", Username: "Alice Johnson", Email: "alice@example.com"},
	{UserId: "200", Username: "Bob Smith", Email: "bob@example.com"},
	{UserId: "300", Username: "Charlie Brown", Email: "charlie@example.com"},
	{UserId: "400", Username: "Diana Prince", Email: "diana@example.com"},
	{UserId: "500", Username: "Eve Wilson", Email: "eve@example.com"},
}

func main() {
	logger := log.New(os.Stderr, "[seed] ", log.LstdFlags)

	opts, err := config.LoadOptions()
	if err != nil {
		logger.Fatal("load options: ", err)
	}

	flag.StringVar(&opts.DatabaseDriver, "driver", opts.DatabaseDriver, "database driver (postgres or sqlite3)")
	flag.StringVar(&opts.DatabaseDSN, "dsn", opts.DatabaseDSN, "database connection string")
	flag.StringVar(&opts.SigningKey, "signing-key", opts.SigningKey, "base64 encoded signing key used to print tokens")
	flag.Parse()

	cfg, err := config.NewConfig(*opts)
	if err != nil {
		logger.Fatal("config: ", err)
	}

	db, err := database.NewSQLChatRepository(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open: ", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout*time.Duration(len(sampleUsers)))
	defer cancel()

	if err := seed(ctx, logger, db, sampleUsers); err != nil {
		logger.Fatal("seed: ", err)
	}

	fmt.Println("sample users:")
	for _, u := range sampleUsers {
		line := fmt.Sprintf("  - %s: %s (%s)", u.UserId, u.Username, u.Email)
		if cfg.AuthEnabled() {
			token, err := api.NewToken(cfg.SigningKey, u.UserId, api.DefaultTokenExpiration)
			if err != nil {
				logger.Fatal("create token: ", err)
			}
			line += "\n      token: " + token
		}
		fmt.Println(line)
	}
}

// seed creates each user that does not exist yet.
func seed(ctx context.Context, logger *log.Logger, db database.ChatRepository, users []database.CreateUserParams) error {
	for _, params := range users {
		_, err := db.GetUser(ctx, params.UserId)
		if err == nil {
			logger.Printf("user %s (%s) already exists, skipping", params.UserId, params.Username)
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("get user %s: %w", params.UserId, err)
		}

		if _, err := db.CreateUser(ctx, params); err != nil {
			return fmt.Errorf("create user %s: %w", params.UserId, err)
		}
		logger.Printf("created user %s (%s)", params.UserId, params.Username)
	}

	return nil
}
