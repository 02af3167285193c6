package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample plans and users for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlxDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		db, err := initGorm(sqlxDB)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		if clearData {
			fmt.Println("Clearing existing data...")
			for _, table := range []string{"payments", "subscriptions", "plans", "users"} {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
		}

		users := []struct {
			email string
			name  string
		}{
			{"fadhil@mail.com", "Fadhil"},
			{"padil@mail.com", "Padil"},
		}
		for _, u := range users {
			var exists int
			row := db.Raw("SELECT 1 FROM users WHERE email = ?", u.email).Row()
			if err := row.Scan(&exists); err == nil {
				fmt.Println("user already exists:", u.email)
				continue
			}
			if err := db.Exec("INSERT INTO users (email, name, created_at, updated_at) VALUES (?, ?, now(), now())", u.email, u.name).Error; err != nil {
				log.Fatalf("failed to insert user %s: %v", u.email, err)
			}
			fmt.Println("Seeded user:", u.email)
		}

		plans := []struct {
			name        string
			amountMinor int64
			currency    string
			interval    string
			trialDays   int
		}{
			{"basic-monthly", 99900, "INR", "month", 0},
			{"pro-monthly", 199900, "INR", "month", 7},
			{"pro-yearly", 1999900, "INR", "year", 14},
		}
		for _, p := range plans {
			var exists int
			row := db.Raw("SELECT 1 FROM plans WHERE name = ?", p.name).Row()
			if err := row.Scan(&exists); err == nil {
				fmt.Println("plan already exists:", p.name)
				continue
			}
			if err := db.Exec(
				"INSERT INTO plans (name, amount_minor, currency, interval, trial_days, created_at, updated_at) VALUES (?, ?, ?, ?, ?, now(), now())",
				p.name, p.amountMinor, p.currency, p.interval, p.trialDays,
			).Error; err != nil {
				log.Fatalf("failed to insert plan %s: %v", p.name, err)
			}
			fmt.Println("Seeded plan:", p.name)
		}
	},
}
