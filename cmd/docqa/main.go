// Command docqa runs the document question answering service.
package main

import (
	"github.com/joho/godotenv"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/docqa/cmd/docqa/app"
)

func main() {
	// .env is optional; variables already set in the environment win.
	_ = godotenv.Load()
	// GOMAXPROCS follows the container CPU quota.
	_, _ = maxprocs.Set()

	app.NewApp().Run()
}
