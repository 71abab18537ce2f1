package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	_ "time/tzdata"

	"github.com/agentworkforce/homepage/internal/shutdown"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), shutdown.Signals()...)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "homepagectl:", err)
		stop()
		os.Exit(1)
	}
}
