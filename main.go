package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"Mizan/CronJobs"
	"Mizan/FiberConfig"
	"Mizan/Models"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment defaults")
	}

	Models.Connect()

	auditor := CronJobs.NewLedgerAuditor(Models.DB, os.Getenv("AUDIT_SCHEDULE"), false)
	if err := auditor.Start(); err != nil {
		log.Printf("Failed to start ledger auditor: %v", err)
	}
	defer auditor.Stop()

	FiberConfig.FiberConfig()
}
