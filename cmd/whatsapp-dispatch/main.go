package main

import (
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"whatsapp-dispatch-go/internal/app"
)

func main() {
	_ = godotenv.Load()

	if err := app.Run(); err != nil {
		logrus.Fatalf("application error: %v", err)
	}
}
