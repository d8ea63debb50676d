package main

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func main() {
	app := mustBootstrapTrackLogAPI()
	defer app.Close()

	if err := app.Run(); err != nil && !errors.Is(err, context.Canceled) {
		app.log.Error("tracklog-api stopped", zap.Error(err))
		panic(err)
	}
}
